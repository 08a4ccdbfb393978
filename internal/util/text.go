package util

import (
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

// Truncate shortens s to max runes, appending "..." when anything was cut.
// Used for checkpoint, tried-step, and title previews in injections.
func Truncate(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// TruncateCell shortens s to a display width of w cells with an ellipsis
// tail, respecting wide runes. Used for aligned terminal output.
func TruncateCell(s string, w int) string {
	return truncate.StringWithTail(s, uint(w), "…")
}

// PadCell right-pads s with spaces to a display width of w cells.
func PadCell(s string, w int) string {
	return runewidth.FillRight(runewidth.Truncate(s, w, ""), w)
}
