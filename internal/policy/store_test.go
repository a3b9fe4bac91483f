package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestStoreSwapPersistsAndBumpsVersion(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)

	table := &Table{
		Rules: []Rule{
			{ID: "r-1", Priority: 10, Enabled: true, Actions: Actions{Strategy: "balanced"}},
		},
	}
	if errSwap := store.Swap(context.Background(), table, "admin@test"); errSwap != nil {
		t.Fatalf("swap: %v", errSwap)
	}

	current := store.Current()
	if current.Version != 1 {
		t.Fatalf("expected version 1, got %d", current.Version)
	}
	if current.Rules[0].ModifiedBy != "admin@test" {
		t.Fatalf("expected audit actor stamped, got %q", current.Rules[0].ModifiedBy)
	}
	if current.Rules[0].LastModified.IsZero() {
		t.Fatalf("expected last-modified stamped")
	}

	var active models.PolicyTable
	if errFind := conn.Where("active = ?", true).First(&active).Error; errFind != nil {
		t.Fatalf("load active row: %v", errFind)
	}
	if active.Version != 1 {
		t.Fatalf("expected persisted version 1, got %d", active.Version)
	}
}

func TestStoreSwapRejectsInvalidTableAndKeepsOld(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)

	good := &Table{Rules: []Rule{{ID: "r-1", Enabled: true}}}
	if errSwap := store.Swap(context.Background(), good, "admin"); errSwap != nil {
		t.Fatalf("swap good table: %v", errSwap)
	}

	bad := &Table{Rules: []Rule{{ID: "dup"}, {ID: "dup"}}}
	errSwap := store.Swap(context.Background(), bad, "admin")
	if errSwap == nil {
		t.Fatalf("expected duplicate-id rejection, got nil")
	}
	if !errors.Is(errSwap, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got %v", errSwap)
	}

	current := store.Current()
	if current.Version != 1 || current.Rules[0].ID != "r-1" {
		t.Fatalf("expected previous table still active, got version %d rules %v", current.Version, current.Rules)
	}
}

func TestStoreUpsertRuleReplacesInPlace(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)

	base := &Table{Rules: []Rule{{ID: "r-1", Priority: 10, Enabled: true}}}
	if errSwap := store.Swap(context.Background(), base, "admin"); errSwap != nil {
		t.Fatalf("swap base: %v", errSwap)
	}

	updated := Rule{ID: "r-1", Priority: 99, Enabled: true, Actions: Actions{Strategy: "cost-first"}}
	if errUpsert := store.UpsertRule(context.Background(), updated, "ops@test"); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}

	current := store.Current()
	if current.Version != 2 {
		t.Fatalf("expected version 2 after upsert, got %d", current.Version)
	}
	if len(current.Rules) != 1 {
		t.Fatalf("expected rule replaced not appended, got %d rules", len(current.Rules))
	}
	if current.Rules[0].Priority != 99 {
		t.Fatalf("expected updated priority, got %d", current.Rules[0].Priority)
	}
	if current.Rules[0].ModifiedBy != "ops@test" {
		t.Fatalf("expected audit actor on updated rule, got %q", current.Rules[0].ModifiedBy)
	}
}

func TestStoreLoadActiveRestoresPersistedTable(t *testing.T) {
	conn := openTestDB(t)

	first := NewStore(conn)
	table := &Table{Rules: []Rule{{ID: "r-1", Enabled: true, Actions: Actions{Strategy: "balanced"}}}}
	if errSwap := first.Swap(context.Background(), table, "admin"); errSwap != nil {
		t.Fatalf("swap: %v", errSwap)
	}

	second := NewStore(conn)
	if errLoad := second.LoadActive(context.Background()); errLoad != nil {
		t.Fatalf("load active: %v", errLoad)
	}
	if second.Current().Version != 1 {
		t.Fatalf("expected restored version 1, got %d", second.Current().Version)
	}
	if len(second.Current().Rules) != 1 || second.Current().Rules[0].ID != "r-1" {
		t.Fatalf("expected restored rules, got %v", second.Current().Rules)
	}
}

func TestStoreRefreshPicksUpNewerVersionOnly(t *testing.T) {
	conn := openTestDB(t)

	writer := NewStore(conn)
	if errSwap := writer.Swap(context.Background(), &Table{Rules: []Rule{{ID: "r-1", Enabled: true}}}, "admin"); errSwap != nil {
		t.Fatalf("swap v1: %v", errSwap)
	}

	reader := NewStore(conn)
	if errLoad := reader.LoadActive(context.Background()); errLoad != nil {
		t.Fatalf("load active: %v", errLoad)
	}

	// Same version: refresh is a no-op.
	if errRefresh := reader.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh same version: %v", errRefresh)
	}
	if reader.Current().Version != 1 {
		t.Fatalf("expected version 1 retained, got %d", reader.Current().Version)
	}

	if errSwap := writer.Swap(context.Background(), &Table{Rules: []Rule{{ID: "r-2", Enabled: true}}}, "admin"); errSwap != nil {
		t.Fatalf("swap v2: %v", errSwap)
	}
	if errRefresh := reader.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh newer version: %v", errRefresh)
	}
	if reader.Current().Version != 2 {
		t.Fatalf("expected version 2 after refresh, got %d", reader.Current().Version)
	}
	if reader.Current().Rules[0].ID != "r-2" {
		t.Fatalf("expected refreshed rules, got %v", reader.Current().Rules)
	}
}

func TestStoreConcurrentDecideDuringSwap(t *testing.T) {
	store := NewStore(nil)
	if errSwap := store.Swap(context.Background(), &Table{
		Rules: []Rule{{ID: "r-1", Enabled: true, Actions: Actions{Strategy: "balanced"}}},
	}, "admin"); errSwap != nil {
		t.Fatalf("swap initial: %v", errSwap)
	}
	matcher := NewMatcher(store, MergeHighestWins)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; i < 100; i++ {
			next := &Table{Rules: []Rule{{ID: "r-1", Enabled: true, Actions: Actions{Strategy: "cost-first"}}}}
			if errSwap := store.Swap(context.Background(), next, "admin"); errSwap != nil {
				t.Errorf("swap %d: %v", i, errSwap)
				return
			}
		}
	}()

	var readers sync.WaitGroup
	for g := 0; g < 8; g++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-writerDone:
					return
				default:
				}
				decision := matcher.Decide(RequestContext{UserID: "u-1"})
				// Every observed snapshot is complete: exactly one rule applies.
				if len(decision.AppliedRuleIDs) != 1 || decision.AppliedRuleIDs[0] != "r-1" {
					t.Errorf("observed torn table: %v", decision.AppliedRuleIDs)
					return
				}
			}
		}()
	}

	<-writerDone
	readers.Wait()

	if store.Current().Version != 101 {
		t.Fatalf("expected version 101 after 100 swaps, got %d", store.Current().Version)
	}
}
