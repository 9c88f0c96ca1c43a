package runner

import "context"

// CommandRunner runs one command line and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}
