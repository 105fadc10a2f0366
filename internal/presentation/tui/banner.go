package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the strata banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"     _             _        ", "#5eead4"},
		{" ___| |_ _ __ __ _| |_ __ _ ", "#2dd4bf"},
		{"/ __| __| '__/ _` | __/ _` |", "#14b8a6"},
		{"\\__ \\ |_| | | (_| | || (_| |", "#0d9488"},
		{"|___/\\__|_|  \\__,_|\\__\\__,_|", "#0f766e"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}
