package connection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/log"
	"github.com/veritail/veritail/internal/testutil"
)

func TestStore_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := connection.NewStore(tdb.Pool, log.NewNop())

	name := "Acme Outdoor Gear"
	conn := &connection.Connection{
		ID:                "conn_acme",
		WebsiteName:       &name,
		AssistantName:     "AI Assistant",
		WelcomeMessage:    "Hi! How can I help you today?",
		Status:            connection.StatusCreated,
		AllowedExtractors: []string{"METADATA", "KNOWLEDGE"},
	}
	if err := store.Create(ctx, conn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Duplicate ID is rejected.
	if err := store.Create(ctx, conn); !errors.Is(err, connection.ErrAlreadyExists) {
		t.Fatalf("Create() duplicate error = %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(ctx, "conn_acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.WebsiteName == nil || *got.WebsiteName != name {
		t.Errorf("WebsiteName = %v, want %q", got.WebsiteName, name)
	}
	if got.Status != connection.StatusCreated {
		t.Errorf("Status = %q, want %q", got.Status, connection.StatusCreated)
	}
	if len(got.AllowedExtractors) != 2 {
		t.Errorf("AllowedExtractors = %v, want 2 entries", got.AllowedExtractors)
	}
	if got.GatePolicy != nil {
		t.Errorf("GatePolicy = %+v, want nil", got.GatePolicy)
	}

	if _, err := store.Get(ctx, "conn_missing"); !errors.Is(err, connection.ErrNotFound) {
		t.Fatalf("Get() missing error = %v, want ErrNotFound", err)
	}
}

func TestStore_MarkConnected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := connection.NewStore(tdb.Pool, log.NewNop())

	conn := &connection.Connection{ID: "conn_handshake", Status: connection.StatusCreated}
	if err := store.Create(ctx, conn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.MarkConnected(ctx, "conn_handshake")
	if err != nil {
		t.Fatalf("MarkConnected() error = %v", err)
	}
	if got.Status != connection.StatusConnected {
		t.Errorf("Status = %q, want %q", got.Status, connection.StatusConnected)
	}
	if !got.WidgetSeen {
		t.Error("WidgetSeen = false, want true")
	}

	// A later handshake must not regress status.
	if err := store.UpdateStatus(ctx, "conn_handshake", connection.StatusReady); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	got, err = store.MarkConnected(ctx, "conn_handshake")
	if err != nil {
		t.Fatalf("MarkConnected() repeat error = %v", err)
	}
	if got.Status != connection.StatusReady {
		t.Errorf("Status after repeat handshake = %q, want %q", got.Status, connection.StatusReady)
	}

	if _, err := store.MarkConnected(ctx, "conn_missing"); !errors.Is(err, connection.ErrNotFound) {
		t.Fatalf("MarkConnected() missing error = %v, want ErrNotFound", err)
	}
}

func TestStore_PolicyRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := connection.NewStore(tdb.Pool, log.NewNop())

	if err := store.Create(ctx, &connection.Connection{ID: "conn_policy", Status: connection.StatusReady}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	policy := &connection.Policy{
		MinAnswerConfidence: 0.7,
		MinSourceCount:      2,
		LowConfidenceAction: connection.ActionEscalate,
	}
	if err := store.SetPolicy(ctx, "conn_policy", policy); err != nil {
		t.Fatalf("SetPolicy() error = %v", err)
	}

	got, err := store.Get(ctx, "conn_policy")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GatePolicy == nil {
		t.Fatal("GatePolicy = nil, want stored policy")
	}
	if *got.GatePolicy != *policy {
		t.Errorf("GatePolicy = %+v, want %+v", *got.GatePolicy, *policy)
	}

	// Clearing the policy restores pass-through.
	if err := store.SetPolicy(ctx, "conn_policy", nil); err != nil {
		t.Fatalf("SetPolicy(nil) error = %v", err)
	}
	got, err = store.Get(ctx, "conn_policy")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GatePolicy != nil {
		t.Errorf("GatePolicy after clear = %+v, want nil", got.GatePolicy)
	}

	// Invalid policies never reach the database.
	bad := &connection.Policy{MinAnswerConfidence: 2.0}
	if err := store.SetPolicy(ctx, "conn_policy", bad); !errors.Is(err, connection.ErrInvalidPolicy) {
		t.Fatalf("SetPolicy() invalid error = %v, want ErrInvalidPolicy", err)
	}
}

func TestStore_IssueExtractionToken(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := connection.NewStore(tdb.Pool, log.NewNop())

	if err := store.Create(ctx, &connection.Connection{ID: "conn_extract", Status: connection.StatusConnected}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	expires := time.Now().Add(24 * time.Hour).UTC()
	err := store.IssueExtractionToken(ctx, "conn_extract", "tok_secret", expires, []string{"METADATA", "BRANDING"})
	if err != nil {
		t.Fatalf("IssueExtractionToken() error = %v", err)
	}

	got, err := store.Get(ctx, "conn_extract")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.ExtractionEnabled {
		t.Error("ExtractionEnabled = false, want true")
	}
	if got.ExtractionToken == nil || *got.ExtractionToken != "tok_secret" {
		t.Errorf("ExtractionToken = %v, want tok_secret", got.ExtractionToken)
	}
	if got.Status != connection.StatusExtractionRequested {
		t.Errorf("Status = %q, want %q", got.Status, connection.StatusExtractionRequested)
	}
	if got.ExtractionTokenExpires == nil {
		t.Fatal("ExtractionTokenExpires = nil, want value")
	}
	if diff := got.ExtractionTokenExpires.Sub(expires); diff > time.Second || diff < -time.Second {
		t.Errorf("ExtractionTokenExpires = %v, want ~%v", got.ExtractionTokenExpires, expires)
	}

	if err := got.ValidateExtractionToken("tok_secret", time.Now()); err != nil {
		t.Errorf("ValidateExtractionToken() = %v, want nil", err)
	}
}
