package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agentscan/pkg/logger"
	"agentscan/pkg/workflow"

	"github.com/sirupsen/logrus"
)

// Placeholders substituted in every command before it runs.
const (
	TargetPlaceholder  = "{target}"
	TimeoutPlaceholder = "{timeout}"
)

// ShellExecutor runs an approved strategy's commands one after another and
// concatenates their output. A command that keeps failing after its retries
// is recorded in the output rather than aborting the batch, so the assessor
// still sees what happened.
type ShellExecutor struct {
	runner CommandRunner
	logger *logger.Logger
	// backoff between attempts of the same command
	backoff time.Duration
}

type ShellOption func(*ShellExecutor)

func WithCommandRunner(r CommandRunner) ShellOption {
	return func(e *ShellExecutor) {
		e.runner = r
	}
}

func WithRunnerLogger(l *logger.Logger) ShellOption {
	return func(e *ShellExecutor) {
		e.logger = l
	}
}

func WithBackoff(d time.Duration) ShellOption {
	return func(e *ShellExecutor) {
		e.backoff = d
	}
}

func NewShellExecutor(opts ...ShellOption) *ShellExecutor {
	e := &ShellExecutor{
		runner:  &DefaultCommandRunner{},
		logger:  logger.NewLogger(logrus.InfoLevel),
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ShellExecutor) Execute(ctx context.Context, req workflow.ExecutionRequest) (string, error) {
	var out strings.Builder

	for i, raw := range req.Commands {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}

		command := Substitute(raw, req)
		if strings.TrimSpace(command) == "" {
			continue
		}

		e.logger.WithFields(logger.Fields{
			"current": i + 1,
			"total":   len(req.Commands),
			"command": command,
		}).Info("Executing command")

		output, attempts, err := e.runWithRetries(ctx, command, req.Parameters)
		if err != nil && ctx.Err() != nil {
			return out.String(), ctx.Err()
		}

		fmt.Fprintf(&out, "$ %s\n", command)
		out.Write(output)
		if len(output) > 0 && output[len(output)-1] != '\n' {
			out.WriteByte('\n')
		}
		if err != nil {
			fmt.Fprintf(&out, "[command failed after %d attempt(s): %v]\n", attempts, err)
			e.logger.WithFields(logger.Fields{
				"command":  command,
				"attempts": attempts,
			}).WithError(err).Warn("Command failed")
		}
		out.WriteByte('\n')
	}

	return out.String(), nil
}

func (e *ShellExecutor) runWithRetries(ctx context.Context, command string, params workflow.ScanParameters) ([]byte, int, error) {
	timeout := time.Duration(params.Timeout) * time.Second
	maxAttempts := params.MaxRetries + 1

	var (
		output []byte
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err = e.runOnce(ctx, command, timeout)
		if err == nil {
			return output, attempt, nil
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			return output, attempt, err
		}

		e.logger.WithFields(logger.Fields{
			"command": command,
			"attempt": attempt,
		}).WithError(err).Debug("Retrying command")

		select {
		case <-ctx.Done():
			return output, attempt, ctx.Err()
		case <-time.After(e.backoff):
		}
	}
	return output, maxAttempts, err
}

func (e *ShellExecutor) runOnce(ctx context.Context, command string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return e.runner.Run(ctx, command)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := e.runner.Run(runCtx, command)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return output, fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return output, err
}

// Substitute fills the placeholders a strategist may use instead of the
// literal target address.
func Substitute(command string, req workflow.ExecutionRequest) string {
	r := strings.NewReplacer(
		TargetPlaceholder, req.TargetIP,
		TimeoutPlaceholder, strconv.Itoa(req.Parameters.Timeout),
	)
	return r.Replace(command)
}
