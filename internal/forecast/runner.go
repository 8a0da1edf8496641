package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const stderrExcerpt = 512

type ScriptRunner interface {
	Run(ctx context.Context, script string, args ...string) (Result, error)
	RunJSON(ctx context.Context, script string, args ...string) (json.RawMessage, error)
	Timeout(script string) time.Duration
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

type RunnerConfig struct {
	Python     string
	ScriptsDir string
	WorkDir    string
	Catalog    Catalog
	Logger     *zap.SugaredLogger
}

// Runner executes catalogued Python scripts as child processes. Arguments are
// passed as an argument vector; no shell is involved.
type Runner struct {
	python     string
	scriptsDir string
	workDir    string
	catalog    Catalog
	log        *zap.SugaredLogger
	command    func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Python == "" {
		return nil, errors.New("python binary is required")
	}
	if cfg.Catalog.scripts == nil {
		return nil, errors.New("script catalog is required")
	}

	scriptsDir, err := filepath.Abs(cfg.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve scripts dir: %w", err)
	}
	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Runner{
		python:     cfg.Python,
		scriptsDir: scriptsDir,
		workDir:    workDir,
		catalog:    cfg.Catalog,
		log:        logger,
		command:    exec.CommandContext,
	}, nil
}

func (r *Runner) WorkDir() string {
	return r.workDir
}

// Timeout reports the execution budget of a script, or zero if it is unknown.
func (r *Runner) Timeout(script string) time.Duration {
	s, err := r.catalog.Lookup(script)
	if err != nil {
		return 0
	}
	return s.Timeout
}

func (r *Runner) Run(ctx context.Context, script string, args ...string) (Result, error) {
	s, err := r.catalog.Lookup(script)
	if err != nil {
		return Result{}, err
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	argv := append([]string{filepath.Join(r.scriptsDir, s.File)}, args...)
	cmd := r.command(ctx, r.python, argv...)
	cmd.Dir = r.workDir
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.log.Warnw("script timed out", "script", script, "timeout", s.Timeout)
		return result, fmt.Errorf("%w: %s after %s", ErrScriptTimeout, script, s.Timeout)
	}
	if runErr != nil {
		excerpt := tail(stderr.String(), stderrExcerpt)
		r.log.Warnw("script failed", "script", script, "error", runErr, "stderr", excerpt)
		return result, fmt.Errorf("%w: %s: %v: %s", ErrScriptFailed, script, runErr, excerpt)
	}

	if stderr.Len() > 0 {
		r.log.Debugw("script wrote to stderr", "script", script, "stderr", tail(stderr.String(), stderrExcerpt))
	}
	r.log.Infow("script finished", "script", script, "duration", result.Duration)
	return result, nil
}

// RunJSON runs the script and requires stdout to hold exactly one JSON value.
func (r *Runner) RunJSON(ctx context.Context, script string, args ...string) (json.RawMessage, error) {
	result, err := r.Run(ctx, script, args...)
	if err != nil {
		return nil, err
	}
	return decodeSingleJSON(result.Stdout)
}

func decodeSingleJSON(out []byte) (json.RawMessage, error) {
	decoder := json.NewDecoder(bytes.NewReader(out))
	var value json.RawMessage
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidOutput)
	}
	return value, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
