package etl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/BartekS5/breweries/internal/config"
	"github.com/BartekS5/breweries/pkg/logger"
)

// DbtRunner runs the dbt project that builds silver and gold from the raw
// table. dbt itself is opaque here: the contract is the command line and the
// RAW_TABLE_PATH variable.
type DbtRunner struct {
	Config       config.Transform
	RawTablePath string
}

func NewDbtRunner(cfg config.Transform, rawTablePath string) *DbtRunner {
	return &DbtRunner{Config: cfg, RawTablePath: rawTablePath}
}

// Args returns the dbt command line, without the executable.
func (d *DbtRunner) Args() []string {
	command := d.Config.Command
	if command == "" {
		command = "build"
	}
	args := []string{command, "--project-dir", d.Config.ProjectDir}
	if d.Config.ProfilesDir != "" {
		args = append(args, "--profiles-dir", d.Config.ProfilesDir)
	}
	if d.Config.ProfileName != "" {
		args = append(args, "--profile", d.Config.ProfileName)
	}
	if d.Config.TargetName != "" {
		args = append(args, "--target", d.Config.TargetName)
	}
	return append(args, d.Config.ExtraArgs...)
}

func (d *DbtRunner) Transform(ctx context.Context) error {
	rawPath, err := filepath.Abs(d.RawTablePath)
	if err != nil {
		return fmt.Errorf("resolve raw table path: %w", err)
	}

	args := d.Args()
	logger.Infof("Running %s: %s %v", d.Config.GroupID, d.Config.Executable, args)

	out := &lineLogger{prefix: d.Config.GroupID}
	cmd := exec.CommandContext(ctx, d.Config.Executable, args...)
	cmd.Dir = d.Config.ProjectDir
	cmd.Env = append(os.Environ(), "RAW_TABLE_PATH="+rawPath)
	cmd.Stdout = out
	cmd.Stderr = out

	err = cmd.Run()
	out.Flush()
	if err != nil {
		return fmt.Errorf("dbt %s failed: %w", args[0], err)
	}
	return nil
}

// lineLogger forwards process output to the logger one line at a time.
type lineLogger struct {
	mu     sync.Mutex
	prefix string
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := l.buf.Next(i + 1)
		logger.Infof("[%s] %s", l.prefix, bytes.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		logger.Infof("[%s] %s", l.prefix, l.buf.String())
		l.buf.Reset()
	}
}
