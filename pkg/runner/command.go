package runner

import (
	"context"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// DefaultCommandRunner hands the command line to the platform shell.
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(ctx context.Context, command string) ([]byte, error) {
	log.Debugf("Running command: %s", command)

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/c", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Errorf("Command failed: %v", err)
		return output, err
	}

	return output, nil
}
