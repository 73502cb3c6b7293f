package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/mattn/go-isatty"

	"github.com/Bibi40k/podnet-primitives/internal/config"
)

// Replaced in tests.
var (
	stdinIsTerminal = func() bool {
		fd := os.Stdin.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	askConfirm = func(message string, def bool) (bool, error) {
		answer := def
		err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &answer)
		drainStdin()
		if errors.Is(err, terminal.InterruptErr) {
			return false, nil
		}
		return answer, err
	}
)

// knownHostsPrompt returns the host key trust prompt when the config asks for
// one and a human is at the terminal. Without a prompt unknown keys are
// rejected.
func knownHostsPrompt(cfg config.Config, human bool) func(string) (bool, error) {
	if !human || config.NormalizeKnownHostsMode(cfg.SSH.KnownHostsMode) != "prompt" || !stdinIsTerminal() {
		return nil
	}
	return func(message string) (bool, error) {
		return askConfirm(fmt.Sprintf("\033[33m⚠ %s\033[0m", message), false)
	}
}

// confirmScrub asks before a destructive operation. Non-interactive callers
// proceed, as the robot invokes this tool without a terminal.
func confirmScrub(what string, yes bool) error {
	if yes || !stdinIsTerminal() {
		return nil
	}
	ok, err := askConfirm(fmt.Sprintf("Scrub %s?", what), false)
	if err != nil {
		return fmt.Errorf("confirm scrub: %w", err)
	}
	if !ok {
		return &userError{msg: "scrub cancelled", hint: "Pass --yes to skip the confirmation"}
	}
	return nil
}
