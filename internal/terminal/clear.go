// Package terminal provides utilities for terminal operations such as clearing text.
package terminal

import (
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/term"
)

// Width returns the terminal width of stdout, or 80 when it is not a terminal.
func Width() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ClearPreviousLines clears text that was previously printed to stdout,
// typically a prompt plus the user's input.
func ClearPreviousLines(textLength int) {
	clearLines(os.Stdout, LinesFor(textLength, Width()))
}

// LinesFor returns how many lines must be cleared after textLength characters
// were echoed at the given width and the user pressed Enter.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = 80
	}
	total := int(math.Ceil(float64(textLength) / float64(width)))
	if total < 1 {
		total = 1
	}
	// After Enter the cursor sits on a new empty line.
	return total + 1
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
