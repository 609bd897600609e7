package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

const (
	testProjectID = "test-project"
	emulatorHost  = "localhost:8080"
)

func setupFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()

	if conn, err := net.DialTimeout("tcp", emulatorHost, time.Second); err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	} else {
		conn.Close()
	}

	os.Setenv("FIRESTORE_EMULATOR_HOST", emulatorHost)

	client, err := firestore.NewClient(context.Background(), testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	return client
}

// testCollection returns a unique collection name per test run
func testCollection(testName string) string {
	return fmt.Sprintf("test_accounts_%s_%d", testName, time.Now().UnixNano())
}

func TestNew(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestRoundTrip(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()
	ctx := context.Background()

	store, err := New(client, Config{Collection: testCollection("roundtrip")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	acct, err := store.Load(ctx, "user1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if acct != nil {
		t.Fatal("expected nil account for unknown user")
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	acct = admit.NewAccount(now)
	acct.Credits = 320
	acct.HasInitialCredits = true
	acct.RateLimits["conversation"] = &admit.RateLimitState{Count: 25, LastRefillTime: now}

	if err := store.Save(ctx, "user1", acct); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx, "user1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Credits != 320 {
		t.Errorf("credits = %d, want 320", loaded.Credits)
	}
	if got := loaded.RateLimits["conversation"]; got == nil || got.Count != 25 {
		t.Errorf("bucket did not round-trip: %+v", got)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Errorf("createdAt did not round-trip: %v", loaded.CreatedAt)
	}

	if err := store.Delete(ctx, "user1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	gone, _ := store.Load(ctx, "user1")
	if gone != nil {
		t.Error("expected account gone after delete")
	}
}

func TestEngineIntegration(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()
	ctx := context.Background()

	store, _ := New(client, Config{Collection: testCollection("engine")})
	engine, err := admit.NewEngine(store, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
}
