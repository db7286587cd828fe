package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
}

// Component is implemented by every page of the TUI.
type Component interface {
	// Name is the crumb label of the page.
	Name() string
	// Hints lists page-specific shortcuts not covered by the key registry.
	Hints() []MenuHint
}
