package models

import (
	"strings"
	"testing"
	"time"
)

func TestRatingFormatLegacy(t *testing.T) {
	tests := []struct {
		name     string
		uses     int
		velocity float64
		want     string
	}{
		{"fresh lesson", 1, 0, "[*----|-----]"},
		{"no uses", 0, 0, "[-----|-----]"},
		{"mid uses with velocity", 15, 3, "[***--|++---]"},
		{"promotion threshold", 50, 0, "[*****|-----]"},
		{"saturated", 100, 20, "[*****|+++++]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRating(tt.uses, tt.velocity).FormatLegacy()
			if got != tt.want {
				t.Errorf("FormatLegacy(%d, %v) = %q, want %q", tt.uses, tt.velocity, got, tt.want)
			}
		})
	}
}

func TestRatingStarsMonotonic(t *testing.T) {
	prev := 0
	for uses := 0; uses <= 100; uses++ {
		stars := NewRating(uses, 0).Stars()
		if stars < prev {
			t.Fatalf("stars decreased at uses=%d: %d -> %d", uses, prev, stars)
		}
		prev = stars
	}
	if prev != 5 {
		t.Errorf("expected 5 stars at 100 uses, got %d", prev)
	}
}

func TestLessonTokens(t *testing.T) {
	l := &Lesson{Title: "abcd", Content: "efgh"} // 8 chars -> 2 tokens
	if got := l.Tokens(); got != 2 {
		t.Errorf("Tokens() = %d, want 2", got)
	}
	l = &Lesson{Title: "abc", Content: ""} // 3 chars -> rounds up to 1
	if got := l.Tokens(); got != 1 {
		t.Errorf("Tokens() = %d, want 1", got)
	}
}

func TestCitationResultMessage(t *testing.T) {
	r := CitationResult{LessonID: "L001", Uses: 3}
	if got := r.Message(); got != "OK:3" {
		t.Errorf("Message() = %q, want OK:3", got)
	}
	r = CitationResult{LessonID: "L001", Uses: 50, PromotionReady: true}
	if got := r.Message(); got != "PROMOTION_READY:L001:50" {
		t.Errorf("Message() = %q, want PROMOTION_READY:L001:50", got)
	}
}

func TestValidRef(t *testing.T) {
	valid := []string{"core/main.py:50", "internal/store.go:10-25", "a:1"}
	invalid := []string{"no-line", "file:", "file:abc", "has space.go:5", "a:b:1", "file.go:5-"}
	for _, ref := range valid {
		if !ValidRef(ref) {
			t.Errorf("ValidRef(%q) = false, want true", ref)
		}
	}
	for _, ref := range invalid {
		if ValidRef(ref) {
			t.Errorf("ValidRef(%q) = true, want false", ref)
		}
	}
}

func TestValidHandoffID(t *testing.T) {
	valid := []string{"A001", "B123", "hf-a1b2c3d", "hf-0000000"}
	invalid := []string{"a001", "hf-xyz", "hf-a1b2c3", "L001x", ""}
	for _, id := range valid {
		if !ValidHandoffID(id) {
			t.Errorf("ValidHandoffID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if ValidHandoffID(id) {
			t.Errorf("ValidHandoffID(%q) = true, want false", id)
		}
	}
}

func TestNewHandoffID(t *testing.T) {
	now := time.Now()
	id := NewHandoffID("Implement parser", now)
	if !strings.HasPrefix(id, "hf-") || len(id) != 10 {
		t.Fatalf("unexpected id format: %q", id)
	}
	if !ValidHandoffID(id) {
		t.Errorf("generated id %q fails validation", id)
	}
	other := NewHandoffID("Implement parser", now.Add(time.Nanosecond))
	if id == other {
		t.Errorf("ids for different instants collided: %q", id)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 1, 3, 0, 1, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 2 {
		t.Errorf("DaysBetween = %d, want 2 (time of day ignored)", got)
	}
}
