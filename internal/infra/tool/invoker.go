package tool

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/domain/ports/adapter"
	"neunovapdf-backend/internal/infra/logging"
	"neunovapdf-backend/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.ToolRunner = (*Invoker)(nil)

// Limiter gates how many processes may run at once.
type Limiter interface {
	Do(ctx context.Context, task func(ctx context.Context) error) error
}

type Options struct {
	Timeout        time.Duration
	MaxOutputBytes int
	// WaitDelay bounds how long Wait blocks on inherited pipes after the
	// process was killed.
	WaitDelay time.Duration
}

// Invoker runs external executables with stdin discarded and stdout/stderr
// captured. Each invocation has its own deadline; on expiry or caller
// cancellation the whole process group is killed.
type Invoker struct {
	limiter Limiter
	opts    Options
	log     *zerolog.Logger
}

func NewInvoker(limiter Limiter, opts Options, logger *zerolog.Logger) *Invoker {
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 64 << 10
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 5 * time.Second
	}
	l := logger.With().Str("component", "ToolInvoker").Logger()
	return &Invoker{limiter: limiter, opts: opts, log: &l}
}

func (i *Invoker) Run(ctx context.Context, cmd model.ToolCommand) (*model.ExitResult, error) {
	if i.limiter == nil {
		return i.run(ctx, cmd)
	}
	type outcome struct {
		res *model.ExitResult
		err error
	}
	ch := make(chan outcome, 1)
	err := i.limiter.Do(ctx, func(ctx context.Context) error {
		res, err := i.run(ctx, cmd)
		ch <- outcome{res, err}
		return err
	})
	select {
	case o := <-ch:
		return o.res, o.err
	default:
		// rejected, or abandoned before the process finished
		return nil, err
	}
}

func (i *Invoker) run(ctx context.Context, tc model.ToolCommand) (*model.ExitResult, error) {
	l := logging.With(ctx, i.log).With().Str("tool", tc.Tool).Logger()

	runCtx := ctx
	if i.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, tc.Path, tc.Args...)
	cmd.Dir = tc.Dir
	cmd.Stdin = nil // reads from the null device
	stdout := &capped{limit: i.opts.MaxOutputBytes}
	stderr := &capped{limit: i.opts.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = i.opts.WaitDelay
	configureProcessGroup(cmd)

	start := time.Now()
	l.Debug().Str("path", tc.Path).Strs("args", redactArgs(tc)).Msg("tool start")
	err := cmd.Run()
	elapsed := time.Since(start)

	res := &model.ExitResult{
		ExitCode: exitCode(cmd),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	switch {
	case err == nil:
		metrics.ObserveTool(tc.Tool, "ok", elapsed)
		l.Debug().Dur("duration", elapsed).Msg("tool finished")
		return res, nil

	case ctx.Err() != nil:
		// caller went away; not the tool's fault
		metrics.ObserveTool(tc.Tool, "canceled", elapsed)
		l.Info().Dur("duration", elapsed).Msg("tool canceled by caller")
		return res, ctx.Err()

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		metrics.ObserveTool(tc.Tool, "timeout", elapsed)
		l.Warn().Dur("timeout", i.opts.Timeout).Msg("tool timed out and was killed")
		return res, &domain.ToolFailure{Tool: tc.Tool, ExitCode: res.ExitCode, TimedOut: true, Err: context.DeadlineExceeded}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		metrics.ObserveTool(tc.Tool, "exit", elapsed)
		diag := strings.TrimSpace(res.Stderr)
		if diag == "" {
			diag = strings.TrimSpace(res.Stdout)
		}
		l.Warn().Int("exit_code", res.ExitCode).Str("stderr", diag).Msg("tool failed")
		return res, &domain.ToolFailure{Tool: tc.Tool, ExitCode: res.ExitCode, Diagnostic: diag, Err: err}
	}

	metrics.ObserveTool(tc.Tool, "start_error", elapsed)
	l.Error().Err(err).Msg("tool could not be started")
	return res, &domain.ToolFailure{Tool: tc.Tool, ExitCode: -1, Err: err}
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// redactArgs hides password arguments from logs.
func redactArgs(tc model.ToolCommand) []string {
	out := make([]string, len(tc.Args))
	copy(out, tc.Args)
	if tc.Tool != model.ToolQpdf {
		return out
	}
	for i, a := range out {
		switch {
		case strings.HasPrefix(a, "--password="):
			out[i] = "--password=***"
		case a == "--encrypt":
			for j := i + 1; j < len(out) && j <= i+2; j++ {
				out[j] = "***"
			}
		}
	}
	return out
}

// capped keeps at most limit bytes and silently drops the rest so a chatty
// tool cannot grow memory without bound.
type capped struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *capped) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	if room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
			c.truncated = true
		} else {
			c.buf.Write(p)
		}
	} else if len(p) > 0 {
		c.truncated = true
	}
	return len(p), nil
}

func (c *capped) String() string {
	if c.truncated {
		return c.buf.String() + "...(truncated)"
	}
	return c.buf.String()
}
