package util

import (
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShowProgress reports whether progress bars should be drawn on stderr
func ShowProgress() bool {
	return !IsQuiet() && IsTerminal(os.Stderr.Fd())
}

// GetTerminalWidth returns the width of the terminal, or 80 if not a terminal
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
