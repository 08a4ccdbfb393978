package logview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pbrown/claude-recall/internal/util"
)

// Per-event styles for tail rendering.
var eventStyles = map[string]lipgloss.Style{
	EventSessionStart:     lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	EventCitation:         lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	EventError:            lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	EventDecayResult:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	EventHandoffCreated:   lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	EventHandoffChange:    lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	EventHandoffCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	EventTiming:           lipgloss.NewStyle().Faint(true),
	EventHookStart:        lipgloss.NewStyle().Faint(true),
	EventHookEnd:          lipgloss.NewStyle().Faint(true),
	EventHookPhase:        lipgloss.NewStyle().Faint(true),
}

// envelopeKeys are skipped when picking a detail for unrecognized events.
var envelopeKeys = map[string]bool{
	"event": true, "level": true, "timestamp": true,
	"session_id": true, "pid": true, "project": true,
}

// FormatEventLine renders one event as a single line for tail output. When
// color is off the plain text is returned; width <= 0 disables truncation.
func FormatEventLine(e *Event, color bool, width int) string {
	timePart := formatEventTime(e)
	details := eventDetails(e)

	line := fmt.Sprintf("[%s] %s %s %s",
		timePart,
		util.PadCell(e.Event, 18),
		util.PadCell(e.Project, 15),
		details)
	if width > 0 {
		line = util.TruncateCell(line, width)
	}
	if !color {
		return line
	}
	if style, ok := eventStyles[e.Event]; ok {
		return style.Render(line)
	}
	return line
}

func formatEventTime(e *Event) string {
	t := e.Time()
	if t.IsZero() {
		ts := e.Timestamp
		if i := strings.Index(ts, "T"); i >= 0 && len(ts) >= i+9 {
			return ts[i+1 : i+9]
		}
		if len(ts) >= 8 {
			return ts[:8]
		}
		return ts
	}
	return t.Local().Format("15:04:05")
}

// eventDetails summarizes the event-specific payload for one-line display.
func eventDetails(e *Event) string {
	raw := e.Raw
	switch e.Event {
	case EventSessionStart:
		total, _ := e.GetFloat("total_lessons")
		sys, _ := e.GetFloat("system_count")
		proj, _ := e.GetFloat("project_count")
		return fmt.Sprintf("%.0fS/%.0fL (%.0f total)", sys, proj, total)

	case EventCitation:
		before, _ := e.GetFloat("uses_before")
		after, _ := e.GetFloat("uses_after")
		promo := ""
		if b, ok := raw["promotion_ready"].(bool); ok && b {
			promo = " PROMO!"
		}
		return fmt.Sprintf("%s (%.0f→%.0f)%s", e.GetString("lesson_id"), before, after, promo)

	case EventDecayResult:
		uses, _ := e.GetFloat("decayed_uses")
		vel, _ := e.GetFloat("decayed_velocity")
		return fmt.Sprintf("%.0f uses, %.0f velocity decayed", uses, vel)

	case EventError:
		return fmt.Sprintf("%s: %s", e.GetString("op"), util.Truncate(e.GetString("err"), 50))

	case EventHookEnd:
		ms, _ := e.GetFloat("total_ms")
		return fmt.Sprintf("%s: %.0fms", e.GetString("hook"), ms)

	case EventHookPhase:
		ms, _ := e.GetFloat("ms")
		return fmt.Sprintf("%s.%s: %.0fms", e.GetString("hook"), e.GetString("phase"), ms)

	case EventHandoffCreated:
		return fmt.Sprintf("%s %s", e.GetString("handoff_id"), util.Truncate(e.GetString("title"), 30))

	case EventHandoffCompleted:
		tried, _ := e.GetFloat("tried_count")
		return fmt.Sprintf("%s (%.0f steps)", e.GetString("handoff_id"), tried)

	case EventLessonAdded:
		return fmt.Sprintf("%s (%s)", e.GetString("lesson_id"), e.GetString("lesson_level"))
	}

	for k, v := range raw {
		if !envelopeKeys[k] {
			return fmt.Sprintf("%s=%v", k, v)
		}
	}
	return ""
}
