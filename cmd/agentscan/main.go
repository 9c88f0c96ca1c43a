package main

import (
	"os"

	apperrors "agentscan/pkg/errors"

	log "github.com/sirupsen/logrus"
)

// Exit statuses. Configuration problems stop the run before any target is
// touched and get their own code.
const (
	exitFailure = 1
	exitConfig  = 2
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case apperrors.Fatal(err):
		return exitConfig
	default:
		return exitFailure
	}
}

func main() {
	if err := Execute(); err != nil {
		log.Errorf("agentscan: %v", err)
		os.Exit(exitCode(err))
	}
}
