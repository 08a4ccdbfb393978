package handoffs

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/pbrown/claude-recall/internal/config"
	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/models"
)

func newTestStore(t *testing.T) (*Store, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		BaseDir:     t.TempDir(),
		StateDir:    t.TempDir(),
		ProjectRoot: t.TempDir(),
		Policy: config.Policy{
			HandoffStaleDays:            14,
			HandoffCompletedArchiveDays: 7,
			HandoffMaxCompleted:         5,
			HandoffMaxAgeDays:           7,
			DuplicateLengthGate:         10,
		},
	}
	log := debuglog.New(cfg.StateDir, 0, "test")
	return NewStore(cfg, log), cfg
}

func TestAddAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	id, err := store.Add("Implement websocket reconnect", "with backoff", []string{"src/ws.go:10"}, "research", "explore")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !models.ValidHandoffID(id) || !strings.HasPrefix(id, "hf-") {
		t.Fatalf("unexpected id %q", id)
	}

	h, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if h == nil {
		t.Fatal("handoff not found after add")
	}
	if h.Status != models.StatusNotStarted {
		t.Errorf("Status = %q", h.Status)
	}
	if h.Phase != "research" || h.Agent != "explore" {
		t.Errorf("phase/agent = %s/%s", h.Phase, h.Agent)
	}
}

func TestAddValidation(t *testing.T) {
	store, _ := newTestStore(t)
	var verr *models.ValidationError

	if _, err := store.Add("t", "", nil, "bogus-phase", "user"); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for phase, got %v", err)
	}
	if _, err := store.Add("t", "", nil, "research", "bogus-agent"); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for agent, got %v", err)
	}
	if _, err := store.Add("t", "", []string{"bad ref"}, "research", "user"); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for ref, got %v", err)
	}
}

func TestUpdateStatusAndNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Task", "", nil, "", "")

	if err := store.UpdateStatus(id, models.StatusInProgress); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	h, _ := store.Get(id)
	if h.Status != models.StatusInProgress {
		t.Errorf("Status = %q", h.Status)
	}

	var verr *models.ValidationError
	if err := store.UpdateStatus(id, "nonsense"); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	var nf *models.NotFoundError
	if err := store.UpdateStatus("hf-ffffff0", models.StatusBlocked); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestAddTriedAutoComplete(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Ship feature", "", nil, "research", "user")

	if err := store.AddTried(id, models.OutcomeSuccess, "Final: ship v1"); err != nil {
		t.Fatalf("AddTried failed: %v", err)
	}
	h, _ := store.Get(id)
	if h.Status != models.StatusCompleted {
		t.Errorf("Status = %q, want completed", h.Status)
	}
	if h.Phase != models.PhaseReview {
		t.Errorf("Phase = %q, want review", h.Phase)
	}
}

func TestAddTriedAutoCompleteNeedsSuccess(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Ship feature", "", nil, "research", "user")

	// A fail outcome never completes, even with the keyword.
	store.AddTried(id, models.OutcomeFail, "Done but broken")
	h, _ := store.Get(id)
	if h.Status == models.StatusCompleted {
		t.Error("fail outcome must not auto-complete")
	}
}

func TestAddTriedAutoPhaseBumpKeyword(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Reconnect work", "", nil, "research", "user")

	if err := store.AddTried(id, models.OutcomeSuccess, "Implement websocket reconnect"); err != nil {
		t.Fatal(err)
	}
	h, _ := store.Get(id)
	if h.Phase != models.PhaseImplementing {
		t.Errorf("Phase = %q, want implementing", h.Phase)
	}

	// Completing afterwards moves to review (scenario: implement then final).
	store.AddTried(id, models.OutcomeSuccess, "Final: ship v1")
	h, _ = store.Get(id)
	if h.Status != models.StatusCompleted || h.Phase != models.PhaseReview {
		t.Errorf("status/phase = %s/%s, want completed/review", h.Status, h.Phase)
	}
}

func TestAddTriedAutoPhaseBumpTenthSuccess(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Slow burn", "", nil, "research", "user")

	// Nine successes without implementing keywords: phase stays.
	for i := 0; i < 9; i++ {
		if err := store.AddTried(id, models.OutcomeSuccess, "checked assumption"); err != nil {
			t.Fatal(err)
		}
	}
	h, _ := store.Get(id)
	if h.Phase != models.PhaseResearch {
		t.Fatalf("phase bumped early: %q", h.Phase)
	}

	// The tenth success bumps it.
	store.AddTried(id, models.OutcomeSuccess, "checked another assumption")
	h, _ = store.Get(id)
	if h.Phase != models.PhaseImplementing {
		t.Errorf("Phase = %q, want implementing after 10 successes", h.Phase)
	}
}

func TestAddTriedPhaseNeverRegresses(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Review stage work", "", nil, "review", "review")

	store.AddTried(id, models.OutcomeSuccess, "Implement the thing")
	h, _ := store.Get(id)
	if h.Phase != models.PhaseReview {
		t.Errorf("Phase = %q, review must not regress", h.Phase)
	}
}

func TestCompleteReturnsExtractionPrompt(t *testing.T) {
	store, _ := newTestStore(t)
	id, _ := store.Add("Prompt source", "does things", []string{"a.go:1"}, "research", "user")
	store.AddTried(id, models.OutcomeFail, "first try")

	result, err := store.Complete(id)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Handoff.Status != models.StatusCompleted {
		t.Errorf("Status = %q", result.Handoff.Status)
	}
	prompt := result.ExtractionPrompt
	for _, want := range []string{"Prompt source", "does things", "[fail] first try", "a.go:1"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("extraction prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestArchiveMovesRecord(t *testing.T) {
	store, cfg := newTestStore(t)
	id, _ := store.Add("To be archived", "", nil, "", "")

	if err := store.Archive(id); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	h, _ := store.Get(id)
	if h != nil {
		t.Error("handoff still active after archive")
	}

	data, err := os.ReadFile(cfg.ProjectHandoffsArchive())
	if err != nil {
		t.Fatalf("archive file missing: %v", err)
	}
	if !strings.Contains(string(data), id) {
		t.Error("archived record not in archive file")
	}
}

func TestDeleteIsPermanent(t *testing.T) {
	store, cfg := newTestStore(t)
	id, _ := store.Add("To be deleted", "", nil, "", "")

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if h, _ := store.Get(id); h != nil {
		t.Error("handoff still present after delete")
	}
	if _, err := os.Stat(cfg.ProjectHandoffsArchive()); err == nil {
		data, _ := os.ReadFile(cfg.ProjectHandoffsArchive())
		if strings.Contains(string(data), id) {
			t.Error("deleted handoff leaked into archive")
		}
	}
}

func TestListExcludesCompletedByDefault(t *testing.T) {
	store, _ := newTestStore(t)
	a, _ := store.Add("Open work", "", nil, "", "")
	b, _ := store.Add("Closed work", "", nil, "", "")
	store.UpdateStatus(b, models.StatusCompleted)

	active, _ := store.List("", false)
	if len(active) != 1 || active[0].ID != a {
		t.Errorf("active list = %+v", active)
	}

	all, _ := store.List("", true)
	if len(all) != 2 {
		t.Errorf("full list = %d, want 2", len(all))
	}

	blocked, _ := store.List(models.StatusCompleted, false)
	if len(blocked) != 1 || blocked[0].ID != b {
		t.Errorf("status filter = %+v", blocked)
	}
}

// rewriteUpdated ages a stored handoff by rewriting its Updated date.
func rewriteUpdated(t *testing.T, path, id, replacement string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	blocks := strings.Split(string(data), "### [")
	for i, block := range blocks {
		if strings.HasPrefix(block, id+"]") {
			idx := strings.Index(block, "**Updated**: ")
			if idx < 0 {
				t.Fatal("no Updated field in block")
			}
			blocks[i] = block[:idx] + "**Updated**: " + replacement + block[idx+len("**Updated**: ")+10:]
		}
	}
	if err := os.WriteFile(path, []byte(strings.Join(blocks, "### [")), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestListCompletedHybridVisibility(t *testing.T) {
	store, cfg := newTestStore(t)

	// Six completed handoffs, all old except the last.
	var ids []string
	for _, title := range []string{"one", "two", "three", "four", "five", "six"} {
		id, _ := store.Add("Completed "+title, "", nil, "", "")
		store.UpdateStatus(id, models.StatusCompleted)
		ids = append(ids, id)
	}
	oldDate := models.DateString(models.Today().AddDate(0, 0, -30))
	for _, id := range ids[:5] {
		rewriteUpdated(t, cfg.ProjectHandoffsFile(), id, oldDate)
	}

	// max_count=2, max_age=7: the two most recent by recency, plus anything
	// within the age window (already covered by the top two here).
	visible, err := store.ListCompleted(2, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 2 {
		t.Fatalf("visible = %d, want 2", len(visible))
	}
	if visible[0].ID != ids[5] {
		t.Errorf("most recent should sort first, got %s", visible[0].ID)
	}

	// A large age window lets old ones back in past the count cap.
	visible, _ = store.ListCompleted(2, 60)
	if len(visible) != 6 {
		t.Errorf("visible with wide window = %d, want 6", len(visible))
	}
}

func TestStaleAutoArchiveOnInject(t *testing.T) {
	store, cfg := newTestStore(t)
	stale, _ := store.Add("Stale work", "original desc", nil, "", "")
	fresh, _ := store.Add("Fresh work", "", nil, "", "")

	oldDate := models.DateString(models.Today().AddDate(0, 0, -30))
	rewriteUpdated(t, cfg.ProjectHandoffsFile(), stale, oldDate)

	out, err := store.Inject(0, 0)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}

	// Stale one is gone from active output, fresh one remains.
	if strings.Contains(out, "Stale work") {
		t.Errorf("stale handoff still injected:\n%s", out)
	}
	if !strings.Contains(out, "Fresh work") {
		t.Errorf("fresh handoff missing:\n%s", out)
	}

	// Archived with the stale note prefixed to the description.
	data, err := os.ReadFile(cfg.ProjectHandoffsArchive())
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if !strings.Contains(string(data), "[Auto-archived: stale after 14 days] original desc") {
		t.Errorf("stale note missing from archive:\n%s", string(data))
	}

	if h, _ := store.Get(fresh); h == nil {
		t.Error("fresh handoff was archived")
	}
}

func TestOldCompletedAutoArchiveOnInject(t *testing.T) {
	store, cfg := newTestStore(t)
	id, _ := store.Add("Old completed", "", nil, "", "")
	store.UpdateStatus(id, models.StatusCompleted)
	rewriteUpdated(t, cfg.ProjectHandoffsFile(), id, models.DateString(models.Today().AddDate(0, 0, -10)))

	if _, err := store.Inject(0, 0); err != nil {
		t.Fatal(err)
	}
	if h, _ := store.Get(id); h != nil {
		t.Error("old completed handoff not archived")
	}
}
