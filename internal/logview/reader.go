package logview

import (
	"bufio"
	"os"
	"strings"
	"syscall"
)

// DefaultMaxBuffer is the default ring-buffer capacity.
const DefaultMaxBuffer = 1000

// Reader is a buffered tail-follower over the debug log. It keeps a bounded
// ring of parsed events, reads incrementally from the last byte offset, and
// detects rotation by inode change, restarting from the top of the new file.
type Reader struct {
	logPath   string
	maxBuffer int

	buffer       []*Event
	lastPosition int64
	lastInode    uint64
	haveInode    bool
}

// NewReader builds a reader over the given log path. maxBuffer <= 0 uses the
// default capacity.
func NewReader(logPath string, maxBuffer int) *Reader {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Reader{logPath: logPath, maxBuffer: maxBuffer}
}

// Path returns the log file being followed.
func (r *Reader) Path() string { return r.logPath }

// BufferSize returns the number of buffered events.
func (r *Reader) BufferSize() int { return len(r.buffer) }

// checkRotation compares the current inode against the cached one; on a
// change the read offset resets so the new file is read from the beginning.
func (r *Reader) checkRotation() bool {
	info, err := os.Stat(r.logPath)
	if err != nil {
		return false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	inode := stat.Ino
	if r.haveInode && inode != r.lastInode {
		r.lastPosition = 0
		r.lastInode = inode
		return true
	}
	r.lastInode = inode
	r.haveInode = true
	return false
}

// LoadBuffer reads new lines from the last observed offset into the ring,
// dropping malformed lines silently. Returns the number of events added.
func (r *Reader) LoadBuffer() int {
	if _, err := os.Stat(r.logPath); err != nil {
		return 0
	}
	r.checkRotation()

	f, err := os.Open(r.logPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	if _, err := f.Seek(r.lastPosition, 0); err != nil {
		return 0
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	added := 0
	for scanner.Scan() {
		if event := ParseEvent(scanner.Text()); event != nil {
			r.append(event)
			added++
		}
	}
	if pos, err := f.Seek(0, 1); err == nil {
		r.lastPosition = pos
	}
	return added
}

func (r *Reader) append(e *Event) {
	r.buffer = append(r.buffer, e)
	if len(r.buffer) > r.maxBuffer {
		r.buffer = r.buffer[len(r.buffer)-r.maxBuffer:]
	}
}

// ReadAll returns every buffered event, oldest first.
func (r *Reader) ReadAll() []*Event {
	r.LoadBuffer()
	out := make([]*Event, len(r.buffer))
	copy(out, r.buffer)
	return out
}

// ReadRecent returns the last n buffered events.
func (r *Reader) ReadRecent(n int) []*Event {
	r.LoadBuffer()
	events := r.buffer
	if len(events) > n {
		events = events[len(events)-n:]
	}
	out := make([]*Event, len(events))
	copy(out, events)
	return out
}

// Filter holds conjunctive event filters; zero values match everything.
type Filter struct {
	Project   string // case-insensitive
	SessionID string
	Event     string
	Level     string
}

// Match reports whether e passes every set criterion.
func (f Filter) Match(e *Event) bool {
	if f.Project != "" && !strings.EqualFold(e.Project, f.Project) {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return true
}

// FilterEvents returns the buffered events passing the filter.
func (r *Reader) FilterEvents(f Filter) []*Event {
	r.LoadBuffer()
	var out []*Event
	for _, e := range r.buffer {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// FilterBySession returns events for one session id.
func (r *Reader) FilterBySession(sessionID string) []*Event {
	return r.FilterEvents(Filter{SessionID: sessionID})
}

// FilterByProject returns events for one project, case-insensitively.
func (r *Reader) FilterByProject(project string) []*Event {
	return r.FilterEvents(Filter{Project: project})
}

// LogSizeBytes returns the current size of the active log file.
func (r *Reader) LogSizeBytes() int64 {
	info, err := os.Stat(r.logPath)
	if err != nil {
		return 0
	}
	return info.Size()
}
