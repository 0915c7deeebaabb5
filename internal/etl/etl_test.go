package etl

import (
	"io"
	"testing"

	"github.com/BartekS5/breweries/pkg/logger"
)

func setTestLogger(t *testing.T, w io.Writer) {
	t.Helper()
	logger.SetOutput(w, logger.DEBUG)
	t.Cleanup(logger.Init)
}
