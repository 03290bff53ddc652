package ui

import "github.com/kjstillabower/weatherapp/internal/presenter"

// SettingsPage is a system settings destination.
type SettingsPage string

const (
	SettingsLocation    SettingsPage = "location_source"
	SettingsApplication SettingsPage = "application_details"
)

// Button is one dialog action. OnClick runs on the event loop after the
// dialog has been dismissed.
type Button struct {
	Label   string
	OnClick func()
}

// DialogSpec describes a modal message with up to two actions.
type DialogSpec struct {
	Message  string
	Positive Button
	Negative Button
}

// Dialog is a shown dialog. Dismiss is idempotent.
type Dialog interface {
	Dismiss()
}

// Screen is the single weather screen.
type Screen interface {
	Show(fields presenter.DisplayFields)
	Toast(message string)
	OpenSettings(page SettingsPage)
	ShowDialog(spec DialogSpec) Dialog
	ShowProgress() Dialog
}

// Command is a menu action typed by the user.
type Command string

const (
	CommandRefresh Command = "refresh"
	CommandQuit    Command = "quit"
)

// ParseCommand maps typed input to a Command.
func ParseCommand(line string) (Command, bool) {
	switch line {
	case "r", "refresh", "R":
		return CommandRefresh, true
	case "q", "quit", "exit", "Q":
		return CommandQuit, true
	}
	return "", false
}
