package knowledge_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
	"github.com/veritail/veritail/internal/testutil"
)

// setupKnowledge starts a database, registers a deterministic embedder,
// and seeds one connection for items to hang off.
func setupKnowledge(t *testing.T) (*knowledge.Store, func()) {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)

	ctx := context.Background()
	g := testutil.SetupGenkit(ctx)
	embedder := testutil.NewMockEmbedder(768).RegisterEmbedder(g)

	conns := connection.NewStore(tdb.Pool, log.NewNop())
	if err := conns.Create(ctx, &connection.Connection{
		ID:     "conn_test",
		Status: connection.StatusReady,
	}); err != nil {
		cleanup()
		t.Fatalf("seeding connection: %v", err)
	}

	store := knowledge.NewStore(tdb.Pool, embedder, log.NewNop())
	return store, cleanup
}

func ingest(t *testing.T, store *knowledge.Store, p knowledge.IngestParams) *knowledge.Item {
	t.Helper()
	if p.ConnectionID == "" {
		p.ConnectionID = "conn_test"
	}
	if p.SourceKind == "" {
		p.SourceKind = knowledge.SourceText
	}
	item, err := store.Ingest(context.Background(), nil, p)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return item
}

func TestStore_IngestAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	item := ingest(t, store, knowledge.IngestParams{
		SourceValue: "faq",
		RawText:     "  We ship worldwide.\r\nDelivery takes 3-5 days.  ",
		Metadata:    map[string]any{"provenance": "reviewer-approved"},
	})

	if item.Status != knowledge.StatusReady {
		t.Errorf("Status = %q, want READY", item.Status)
	}
	if item.Visibility != knowledge.VisibilityShadow {
		t.Errorf("Visibility = %q, want SHADOW default", item.Visibility)
	}
	if item.ConfidenceScore != knowledge.DefaultConfidence {
		t.Errorf("ConfidenceScore = %v, want %v", item.ConfidenceScore, knowledge.DefaultConfidence)
	}
	if item.CleanedText != "We ship worldwide.\nDelivery takes 3-5 days." {
		t.Errorf("CleanedText = %q", item.CleanedText)
	}
	if item.ContentHash != knowledge.Fingerprint(item.CleanedText) {
		t.Error("ContentHash does not match fingerprint of cleaned text")
	}

	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ContentHash != item.ContentHash {
		t.Errorf("ContentHash = %q, want %q", got.ContentHash, item.ContentHash)
	}
	if got.Metadata["provenance"] != "reviewer-approved" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.LastCheckedAt != nil {
		t.Errorf("LastCheckedAt = %v, want nil before first drift check", got.LastCheckedAt)
	}

	if _, err := store.Get(ctx, "11111111-1111-1111-1111-111111111111"); !errors.Is(err, knowledge.ErrNotFound) {
		t.Fatalf("Get() missing error = %v, want ErrNotFound", err)
	}

	if _, err := store.Ingest(ctx, nil, knowledge.IngestParams{
		ConnectionID: "conn_test",
		SourceKind:   knowledge.SourceText,
		RawText:      "   \n\t ",
	}); !errors.Is(err, knowledge.ErrEmptyContent) {
		t.Fatalf("Ingest() blank error = %v, want ErrEmptyContent", err)
	}
}

func TestStore_AdjustConfidence_Clamps(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	item := ingest(t, store, knowledge.IngestParams{
		SourceValue: "returns",
		RawText:     "Returns are accepted within 30 days.",
	})

	// Repeated rewards saturate at 1.0.
	var score float64
	for range 10 {
		var err error
		score, err = store.AdjustConfidence(ctx, item.ID, 0.1)
		if err != nil {
			t.Fatalf("AdjustConfidence() error = %v", err)
		}
	}
	if score != 1.0 {
		t.Errorf("score after repeated rewards = %v, want 1.0", score)
	}

	// Repeated penalties saturate at 0.0.
	for range 10 {
		var err error
		score, err = store.AdjustConfidence(ctx, item.ID, -0.2)
		if err != nil {
			t.Fatalf("AdjustConfidence() error = %v", err)
		}
	}
	if score != 0.0 {
		t.Errorf("score after repeated penalties = %v, want 0.0", score)
	}

	// 0.95 + 0.1 clamps to 1.0, not 1.05.
	if _, err := store.AdjustConfidence(ctx, item.ID, 0.95); err != nil {
		t.Fatalf("AdjustConfidence() error = %v", err)
	}
	score, err := store.AdjustConfidence(ctx, item.ID, 0.1)
	if err != nil {
		t.Fatalf("AdjustConfidence() error = %v", err)
	}
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("score = %v, want clamp to 1.0", score)
	}

	if _, err := store.AdjustConfidence(ctx, "11111111-1111-1111-1111-111111111111", 0.1); !errors.Is(err, knowledge.ErrNotFound) {
		t.Fatalf("AdjustConfidence() missing error = %v, want ErrNotFound", err)
	}
}

func TestStore_FindActive_FiltersShadow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	active := ingest(t, store, knowledge.IngestParams{
		SourceValue: "shipping",
		RawText:     "Shipping is free over fifty dollars.",
		Visibility:  knowledge.VisibilityActive,
	})
	shadow := ingest(t, store, knowledge.IngestParams{
		SourceValue: "internal",
		RawText:     "Shipping margins are negotiated quarterly.",
	})

	citations, err := store.FindActive(ctx, "conn_test", "shipping policy", 10)
	if err != nil {
		t.Fatalf("FindActive() error = %v", err)
	}
	if len(citations) != 1 {
		t.Fatalf("FindActive() returned %d citations, want 1", len(citations))
	}
	if citations[0].ID != active.ID {
		t.Errorf("citation ID = %s, want %s", citations[0].ID, active.ID)
	}
	for _, c := range citations {
		if c.ID == shadow.ID {
			t.Error("SHADOW item leaked into citation list")
		}
	}
}

func TestStore_FindActive_StaleDownWeight(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	item := ingest(t, store, knowledge.IngestParams{
		SourceValue: "hours",
		RawText:     "We are open weekdays from nine to five.",
		Visibility:  knowledge.VisibilityActive,
	})
	if err := store.MarkStale(ctx, item.ID, time.Now()); err != nil {
		t.Fatalf("MarkStale() error = %v", err)
	}

	citations, err := store.FindActive(ctx, "conn_test", "opening hours", 10)
	if err != nil {
		t.Fatalf("FindActive() error = %v", err)
	}
	if len(citations) != 1 {
		t.Fatalf("FindActive() returned %d citations, want 1", len(citations))
	}

	// Stored score stays 0.5; retrieval reports it down-weighted.
	want := knowledge.DefaultConfidence * 0.8
	if math.Abs(citations[0].ConfidenceScore-want) > 1e-9 {
		t.Errorf("stale citation confidence = %v, want %v", citations[0].ConfidenceScore, want)
	}
	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConfidenceScore != knowledge.DefaultConfidence {
		t.Errorf("stored confidence = %v, want unchanged %v", got.ConfidenceScore, knowledge.DefaultConfidence)
	}
}

func TestStore_CheckDrift(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, cleanup := setupKnowledge(t)
	defer cleanup()
	ctx := context.Background()

	item := ingest(t, store, knowledge.IngestParams{
		SourceKind:  knowledge.SourceURL,
		SourceValue: "https://example.com/faq",
		RawText:     "Orders placed before noon ship the same day.",
		Visibility:  knowledge.VisibilityActive,
	})

	// Same fingerprint: synced, nothing mutated.
	result, err := store.CheckDrift(ctx, "conn_test", "https://example.com/faq", item.ContentHash)
	if err != nil {
		t.Fatalf("CheckDrift() error = %v", err)
	}
	if result.Outcome != knowledge.DriftSynced {
		t.Errorf("Outcome = %q, want synced", result.Outcome)
	}
	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != knowledge.StatusReady {
		t.Errorf("Status after synced check = %q, want READY", got.Status)
	}
	if got.LastCheckedAt != nil {
		t.Errorf("LastCheckedAt after synced check = %v, want nil", got.LastCheckedAt)
	}

	// Different fingerprint: drifted, status STALE, visibility and
	// confidence untouched.
	newHash := knowledge.Fingerprint("Orders placed before 2pm ship the same day.")
	result, err = store.CheckDrift(ctx, "conn_test", "https://example.com/faq", newHash)
	if err != nil {
		t.Fatalf("CheckDrift() error = %v", err)
	}
	if result.Outcome != knowledge.DriftDrifted {
		t.Errorf("Outcome = %q, want drifted", result.Outcome)
	}
	if result.ItemID != item.ID {
		t.Errorf("ItemID = %s, want %s", result.ItemID, item.ID)
	}

	got, err = store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != knowledge.StatusStale {
		t.Errorf("Status = %q, want STALE", got.Status)
	}
	if got.Visibility != knowledge.VisibilityActive {
		t.Errorf("Visibility = %q, want unchanged ACTIVE", got.Visibility)
	}
	if got.ConfidenceScore != knowledge.DefaultConfidence {
		t.Errorf("ConfidenceScore = %v, want unchanged", got.ConfidenceScore)
	}
	if got.LastCheckedAt == nil {
		t.Error("LastCheckedAt = nil, want set after drift")
	}

	// Unknown source: not-found outcome, not an error.
	result, err = store.CheckDrift(ctx, "conn_test", "https://example.com/missing", newHash)
	if err != nil {
		t.Fatalf("CheckDrift() error = %v", err)
	}
	if result.Outcome != knowledge.DriftNotFound {
		t.Errorf("Outcome = %q, want not-found", result.Outcome)
	}
}
