// Package prompt provides interactive terminal prompts for CLI commands.
//
// Provisioning is frequently driven by deployment pipelines without a
// controlling terminal. Confirmation helpers therefore distinguish the
// interactive case (ask the operator) from the non-interactive case, where
// the caller supplies the default answer.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("aborted")

// Interactive reports whether stdin is attached to a terminal.
func Interactive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Confirm prompts the user for yes/no confirmation.
// Returns true if the user confirms, false otherwise.
// Returns ErrAborted if the user presses Ctrl+C.
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
	}

	result, err := p.Run()
	if err != nil {
		// Ctrl+C should abort
		if err == promptui.ErrInterrupt {
			return false, ErrAborted
		}
		// promptui returns ErrAbort for "n" response
		if err == promptui.ErrAbort {
			return false, nil
		}
		// Empty input uses default
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}

	result = strings.ToLower(result)
	return result == "y" || result == "yes", nil
}

// ConfirmOrDefault prompts for confirmation when running interactively.
// Without a controlling terminal it returns nonInteractiveDefault instead
// of blocking on stdin.
func ConfirmOrDefault(label string, nonInteractiveDefault bool) (bool, error) {
	if !Interactive() {
		return nonInteractiveDefault, nil
	}
	return Confirm(label, false)
}

// ConfirmWithForce returns true immediately if force is true,
// otherwise behaves like ConfirmOrDefault.
func ConfirmWithForce(label string, force, nonInteractiveDefault bool) (bool, error) {
	if force {
		return true, nil
	}
	return ConfirmOrDefault(label, nonInteractiveDefault)
}
