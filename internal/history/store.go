// Package history persists the outcome of every pipeline run.
package history

import (
	"context"

	"github.com/BartekS5/breweries/pkg/models"
)

// Store saves and lists run records.
type Store interface {
	Save(ctx context.Context, run *models.Run) error
	// List returns up to limit runs, most recent first.
	List(ctx context.Context, limit int) ([]models.Run, error)
}
