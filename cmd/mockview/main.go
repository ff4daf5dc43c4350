package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/skillissue/mockview/internal/models"
)

// Exit codes for different failure modes
const (
	ExitSuccess    = 0 // Interview concluded and the report is complete
	ExitIncomplete = 1 // Session ended early; a partial report was written
	ExitError      = 2 // Configuration or runtime error
)

// IncompleteSessionError indicates that the interview ran, but ended
// before it could conclude on its own.
type IncompleteSessionError struct {
	Message string
}

func (e *IncompleteSessionError) Error() string {
	return e.Message
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var incomplete *IncompleteSessionError
	if errors.As(err, &incomplete) {
		return ExitIncomplete
	}
	var upstream *models.UnrecoverableUpstreamError
	if errors.As(err, &upstream) {
		return ExitIncomplete
	}
	// All other errors are configuration/runtime errors
	return ExitError
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
