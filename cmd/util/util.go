package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sidkik/dfsync/pkg/audit"
	"github.com/sidkik/dfsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin            = bufio.NewReader(os.Stdin)
	exit             = os.Exit
)

// HandleFatalError prints `err` and exits. Friendly errors are printed
// without their context.
func HandleFatalError(err error) {
	audit.Log.WithError(err).Error("Fatal error")

	if msg, ok := errors.GetFriendlyMessage(err); ok {
		fmt.Fprintln(stderr, msg)
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic records a panic in the audit trail before letting it crash the
// process. It must be deferred at the start of every goroutine.
var HandlePanic = audit.HandlePanic

// PromptYesOrNo asks the user a yes or no question on stdin. Anything other
// than "y" or "yes" is treated as no.
func PromptYesOrNo(prompt string) (bool, error) {
	fmt.Fprintf(stdout, "%s (y/N) ", prompt)
	response, err := stdin.ReadString('\n')
	if err != nil && !(err == io.EOF && response != "") {
		return false, errors.WithContext(err, "read response")
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
