package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the AutoFlow ASCII banner and version to w.
// Colours degrade to plain text when w is not a colour terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text, color string
	}{
		{`     _         _        _____ _`, "#34d399"},
		{`    / \  _   _| |_ ___ |  ___| | _____      __`, "#2dd4bf"},
		{`   / _ \| | | | __/ _ \| |_  | |/ _ \ \ /\ / /`, "#22d3ee"},
		{`  / ___ \ |_| | || (_) |  _| | | (_) \ V  V /`, "#38bdf8"},
		{` /_/   \_\__,_|\__\___/|_|   |_|\___/ \_/\_/`, "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  version "+version).Faint())
	fmt.Fprintln(w)
}
