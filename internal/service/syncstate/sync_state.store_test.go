package syncstate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type memoryPersister struct {
	doc     entity.SyncStateDocument
	saves   int
	saveErr error
}

func (m *memoryPersister) Load(ctx context.Context) (entity.SyncStateDocument, error) {
	if m.doc == nil {
		return entity.SyncStateDocument{}, nil
	}
	return m.doc, nil
}

func (m *memoryPersister) Save(ctx context.Context, doc entity.SyncStateDocument) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.doc = doc
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestStore_DefaultWatermarkNotPersisted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	persister := &memoryPersister{}

	store, err := NewStore(context.Background(), persister, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatal(err)
	}

	got := store.Watermark(entity.ExchangeOKX)
	if want := now.Add(-10 * time.Minute); !got.Equal(want) {
		t.Errorf("Watermark = %v, want %v", got, want)
	}
	if persister.saves != 0 {
		t.Errorf("default watermark was persisted %d times", persister.saves)
	}
	if len(store.Snapshot()) != 0 {
		t.Errorf("snapshot should be empty, got %v", store.Snapshot())
	}
}

func TestStore_LoadsPersistedWatermarks(t *testing.T) {
	persister := &memoryPersister{doc: entity.SyncStateDocument{
		"bitget": {LastSyncTimestamp: 1_700_000_000_000},
	}}

	store, err := NewStore(context.Background(), persister)
	if err != nil {
		t.Fatal(err)
	}

	if got := store.Watermark(entity.ExchangeBitget).UnixMilli(); got != 1_700_000_000_000 {
		t.Errorf("Watermark = %d", got)
	}
}

func TestStore_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	persister := &memoryPersister{}
	store, err := NewStore(ctx, persister)
	if err != nil {
		t.Fatal(err)
	}

	t1 := time.UnixMilli(2_000)
	t2 := time.UnixMilli(1_000)

	advanced, err := store.Advance(ctx, entity.ExchangeBinance, t1)
	if err != nil || !advanced {
		t.Fatalf("first advance: advanced=%v err=%v", advanced, err)
	}
	advanced, err = store.Advance(ctx, entity.ExchangeBinance, t2)
	if err != nil || advanced {
		t.Fatalf("backward advance: advanced=%v err=%v", advanced, err)
	}
	advanced, _ = store.Advance(ctx, entity.ExchangeBinance, t1)
	if advanced {
		t.Fatal("equal advance should be a no-op")
	}

	if got := store.Watermark(entity.ExchangeBinance); !got.Equal(t1) {
		t.Errorf("Watermark = %v, want %v", got, t1)
	}
	if persister.saves != 1 {
		t.Errorf("saves = %d, want 1", persister.saves)
	}
	if persister.doc["binance"].LastSyncTimestamp != 2_000 {
		t.Errorf("persisted = %+v", persister.doc)
	}
}

func TestStore_AdvanceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("advancing to t2 <= t1 after t1 keeps t1", prop.ForAll(
		func(t1 int64, delta int64) bool {
			ctx := context.Background()
			store, _ := NewStore(ctx, &memoryPersister{})

			t2 := t1 - delta
			store.Advance(ctx, entity.ExchangeOKX, time.UnixMilli(t1))
			store.Advance(ctx, entity.ExchangeOKX, time.UnixMilli(t2))

			return store.Watermark(entity.ExchangeOKX).UnixMilli() == t1
		},
		gen.Int64Range(1, 4_000_000_000_000),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}

func TestStore_PersistFailureStillAdvancesInMemory(t *testing.T) {
	ctx := context.Background()
	errDisk := errors.New("disk full")
	store, err := NewStore(ctx, &memoryPersister{saveErr: errDisk})
	if err != nil {
		t.Fatal(err)
	}

	to := time.UnixMilli(5_000)
	advanced, err := store.Advance(ctx, entity.ExchangeOKX, to)
	if !advanced {
		t.Fatal("expected in-memory advance")
	}
	if !errors.Is(err, errDisk) {
		t.Fatalf("err = %v, want %v", err, errDisk)
	}
	if got := store.Watermark(entity.ExchangeOKX); !got.Equal(to) {
		t.Errorf("Watermark = %v, want %v", got, to)
	}
}

func TestFilePersister_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sync_state.json")

	first, err := NewStore(ctx, NewFilePersister(path))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Advance(ctx, entity.ExchangeOKX, time.UnixMilli(42_000)); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Advance(ctx, entity.ExchangeBitget, time.UnixMilli(7_000)); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"lastSyncTimestamp": 42000`) {
		t.Errorf("unexpected file content: %s", raw)
	}

	second, err := NewStore(ctx, NewFilePersister(path))
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Watermark(entity.ExchangeOKX).UnixMilli(); got != 42_000 {
		t.Errorf("reloaded okx = %d", got)
	}
	if got := second.Watermark(entity.ExchangeBitget).UnixMilli(); got != 7_000 {
		t.Errorf("reloaded bitget = %d", got)
	}
}

func TestFilePersister_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStore(context.Background(), NewFilePersister(path)); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestNewRedisPersister_Validation(t *testing.T) {
	if _, err := NewRedisPersister(nil, "key"); err == nil {
		t.Error("expected error for nil client")
	}
}
