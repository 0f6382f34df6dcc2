// Package interactive provides terminal user interface components
package interactive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// MenuOption represents a menu item with its associated action
type MenuOption struct {
	Name        string
	Description string
	Action      func() error
}

const exitChoice = "Exit"

var (
	// ErrExit is returned when the user chooses to exit
	ErrExit = errors.New("exit")
	// ErrInvalidSelection is returned when an invalid menu option is selected
	ErrInvalidSelection = errors.New("invalid selection")
)

// Choices renders the option labels shown by ShowMainMenu, Exit last.
func Choices(options []MenuOption) []string {
	choices := make([]string, 0, len(options)+1)
	for _, opt := range options {
		choices = append(choices, label(opt))
	}

	return append(choices, exitChoice)
}

func label(opt MenuOption) string {
	return fmt.Sprintf("%s - %s", opt.Name, opt.Description)
}

// Dispatch runs the action of the option whose label is selected.
func Dispatch(options []MenuOption, selected string) error {
	if selected == exitChoice {
		return ErrExit
	}

	for _, opt := range options {
		if label(opt) == selected {
			return opt.Action()
		}
	}

	return ErrInvalidSelection
}

// ShowMainMenu displays the main menu and handles user selection
func ShowMainMenu(options []MenuOption) error {
	var selected string

	prompt := &survey.Select{
		Message: "What would you like to do?",
		Options: Choices(options),
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return ErrExit
	}

	return Dispatch(options, selected)
}

// Ask prompts for a line of text, returning def when the answer is blank or
// the prompt is aborted.
func Ask(message, def string) string {
	answer := def

	prompt := &survey.Input{
		Message: message,
		Default: def,
	}

	if err := survey.AskOne(prompt, &answer); err != nil {
		return def
	}

	if strings.TrimSpace(answer) == "" {
		return def
	}

	return strings.TrimSpace(answer)
}

// PauseForEnter waits for the user to press Enter
func PauseForEnter() {
	fmt.Println("\nPress Enter to continue...")
	_, _ = fmt.Scanln()
}

// Confirm asks for user confirmation
func Confirm(message string) bool {
	confirmed := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	_ = survey.AskOne(prompt, &confirmed)

	return confirmed
}
