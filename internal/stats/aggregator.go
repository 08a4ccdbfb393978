// Package stats aggregates debug-log events into health metrics: daily
// counters, per-hook timing percentiles, and event histograms.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/pbrown/claude-recall/internal/logview"
)

// cacheTTL bounds how often the snapshot is recomputed under polling.
const cacheTTL = time.Second

// Health thresholds in milliseconds of average hook time.
const (
	healthOKThresholdMs      = 100.0
	healthWarningThresholdMs = 200.0
)

// Health status labels.
const (
	HealthOK       = "OK"
	HealthWarning  = "WARNING"
	HealthDegraded = "DEGRADED"
)

// Snapshot is one computed statistics view over the event buffer.
type Snapshot struct {
	SessionsToday   int
	CitationsToday  int
	ErrorsToday     int
	AvgHookMs       float64
	P95HookMs       float64
	MaxHookMs       float64
	LogSizeMB       float64
	EventCount      int
	EventsByType    map[string]int
	EventsByProject map[string]int
	HookTimings     map[string][]float64
}

// Health classifies the snapshot: OK when today is error-free and hooks are
// fast, WARNING on any error or slow hooks, DEGRADED in between.
func (s Snapshot) Health() string {
	if s.ErrorsToday == 0 && s.AvgHookMs < healthOKThresholdMs {
		return HealthOK
	}
	if s.ErrorsToday > 0 || s.AvgHookMs > healthWarningThresholdMs {
		return HealthWarning
	}
	return HealthDegraded
}

// TimingSummary is per-hook timing statistics.
type TimingSummary struct {
	AvgMs float64
	P95Ms float64
	MaxMs float64
	Count int
}

// Aggregator computes cached snapshots from a log reader's buffer.
type Aggregator struct {
	reader *logview.Reader

	cached    *Snapshot
	cacheTime time.Time
}

// NewAggregator builds an aggregator over the given reader.
func NewAggregator(reader *logview.Reader) *Aggregator {
	return &Aggregator{reader: reader}
}

// InvalidateCache forces the next Compute to rebuild.
func (a *Aggregator) InvalidateCache() {
	a.cached = nil
}

// hookTiming extracts the timing value from a performance event.
func hookTiming(e *logview.Event) (float64, bool) {
	switch e.Event {
	case logview.EventHookEnd:
		return e.GetFloat("total_ms")
	case logview.EventTiming, logview.EventHookPhase:
		return e.GetFloat("ms")
	}
	return 0, false
}

// percentile computes the p-th percentile by linear interpolation on sorted
// values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	k := float64(len(sorted)-1) * p / 100
	f := int(k)
	c := f + 1
	if c >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[f] + (k-float64(f))*(sorted[c]-sorted[f])
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// Compute returns the current snapshot, reusing a cached one within the TTL.
func (a *Aggregator) Compute() Snapshot {
	now := time.Now()
	if a.cached != nil && now.Sub(a.cacheTime) < cacheTTL {
		return *a.cached
	}

	a.reader.LoadBuffer()
	events := a.reader.ReadAll()

	today := now.UTC().Truncate(24 * time.Hour)

	snapshot := Snapshot{
		EventsByType:    map[string]int{},
		EventsByProject: map[string]int{},
		HookTimings:     map[string][]float64{},
		EventCount:      len(events),
	}

	var allTimings []float64
	for _, e := range events {
		snapshot.EventsByType[e.Event]++
		if e.Project != "" {
			snapshot.EventsByProject[e.Project]++
		}

		isToday := false
		if t := e.Time(); !t.IsZero() {
			isToday = t.UTC().Truncate(24 * time.Hour).Equal(today)
		}

		if isToday {
			switch {
			case e.Event == logview.EventSessionStart:
				snapshot.SessionsToday++
			case e.Event == logview.EventCitation:
				snapshot.CitationsToday++
			}
			if e.IsError() {
				snapshot.ErrorsToday++
			}
		}

		if e.IsTiming() {
			if ms, ok := hookTiming(e); ok {
				allTimings = append(allTimings, ms)
				name := e.GetString("hook")
				if name == "" {
					name = e.GetString("op")
				}
				if name == "" {
					name = "unknown"
				}
				snapshot.HookTimings[name] = append(snapshot.HookTimings[name], ms)
			}
		}
	}

	if len(allTimings) > 0 {
		sum := 0.0
		maxMs := allTimings[0]
		for _, ms := range allTimings {
			sum += ms
			if ms > maxMs {
				maxMs = ms
			}
		}
		snapshot.AvgHookMs = round2(sum / float64(len(allTimings)))
		snapshot.P95HookMs = round2(percentile(allTimings, 95))
		snapshot.MaxHookMs = round2(maxMs)
	}

	snapshot.LogSizeMB = round2(float64(a.reader.LogSizeBytes()) / (1024 * 1024))

	a.cached = &snapshot
	a.cacheTime = now
	return snapshot
}

// TimingByHook returns per-hook timing summaries from a snapshot.
func (a *Aggregator) TimingByHook(snapshot Snapshot) map[string]TimingSummary {
	out := make(map[string]TimingSummary, len(snapshot.HookTimings))
	for hook, timings := range snapshot.HookTimings {
		if len(timings) == 0 {
			continue
		}
		sum := 0.0
		maxMs := timings[0]
		for _, ms := range timings {
			sum += ms
			if ms > maxMs {
				maxMs = ms
			}
		}
		out[hook] = TimingSummary{
			AvgMs: round2(sum / float64(len(timings))),
			P95Ms: round2(percentile(timings, 95)),
			MaxMs: round2(maxMs),
			Count: len(timings),
		}
	}
	return out
}

// SessionStats summarizes one session's events.
type SessionStats struct {
	SessionID  string
	EventCount int
	Errors     int
	Citations  int
	DurationMs float64
	Project    string
}

// ComputeSession returns statistics for a single session id.
func (a *Aggregator) ComputeSession(sessionID string) SessionStats {
	events := a.reader.FilterBySession(sessionID)
	out := SessionStats{SessionID: sessionID, EventCount: len(events)}
	if len(events) == 0 {
		return out
	}

	var first, last time.Time
	for _, e := range events {
		if e.Event == logview.EventCitation {
			out.Citations++
		}
		if e.IsError() {
			out.Errors++
		}
		if t := e.Time(); !t.IsZero() {
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
	}
	if !first.IsZero() && last.After(first) {
		out.DurationMs = round2(float64(last.Sub(first)) / float64(time.Millisecond))
	}
	out.Project = events[0].Project
	return out
}

// ProjectStats summarizes one project's events.
type ProjectStats struct {
	Project    string
	EventCount int
	Errors     int
	Citations  int
	Sessions   int
}

// ComputeProject returns statistics for a single project.
func (a *Aggregator) ComputeProject(project string) ProjectStats {
	events := a.reader.FilterByProject(project)
	out := ProjectStats{Project: project, EventCount: len(events)}
	sessions := map[string]bool{}
	for _, e := range events {
		if e.Event == logview.EventCitation {
			out.Citations++
		}
		if e.IsError() {
			out.Errors++
		}
		if e.SessionID != "" {
			sessions[e.SessionID] = true
		}
	}
	out.Sessions = len(sessions)
	return out
}

// RecentErrors returns the most recent error events, newest first.
func (a *Aggregator) RecentErrors(limit int) []*logview.Event {
	a.reader.LoadBuffer()
	var errs []*logview.Event
	for _, e := range a.reader.ReadAll() {
		if e.IsError() {
			errs = append(errs, e)
		}
	}
	if len(errs) > limit {
		errs = errs[len(errs)-limit:]
	}
	for i, j := 0, len(errs)-1; i < j; i, j = i+1, j-1 {
		errs[i], errs[j] = errs[j], errs[i]
	}
	return errs
}

// FormatSummary renders a compact textual overview for the stats command.
func (a *Aggregator) FormatSummary(snapshot Snapshot) string {
	out := fmt.Sprintf("Health: %s\n", snapshot.Health())
	out += fmt.Sprintf("Today: %d sessions, %d citations, %d errors\n",
		snapshot.SessionsToday, snapshot.CitationsToday, snapshot.ErrorsToday)
	out += fmt.Sprintf("Hooks: avg %.2fms, p95 %.2fms, max %.2fms\n",
		snapshot.AvgHookMs, snapshot.P95HookMs, snapshot.MaxHookMs)
	out += fmt.Sprintf("Log: %.2f MB, %d buffered events\n", snapshot.LogSizeMB, snapshot.EventCount)
	return out
}
