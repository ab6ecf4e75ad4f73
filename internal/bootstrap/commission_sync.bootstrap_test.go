package bootstrap

import (
	"testing"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/krobus00/rebate-sync/internal/service/exchange"
	"github.com/krobus00/rebate-sync/internal/service/syncstate"
)

func testEnv() *config.EnvConfig {
	return &config.EnvConfig{
		Exchanges: map[string]config.ExchangeConfig{
			"binance": {Enabled: true, APIKey: "k", APISecret: "s"},
			"okx":     {Enabled: true, APIKey: "k", APISecret: "s"},
			"bitget":  {Enabled: false, APIKey: "k", APISecret: "s", Passphrase: "p"},
		},
	}
}

func TestBuildRegistry_SkipsInvalidAndDisabled(t *testing.T) {
	registry := buildRegistry(testEnv(), nil, exchange.SourceOptions{})

	names := registry.Names()
	if len(names) != 1 || names[0] != entity.ExchangeBinance {
		t.Fatalf("Names() = %v, want [binance]", names)
	}
}

func TestBuildRegistry_OnlySelected(t *testing.T) {
	registry := buildRegistry(testEnv(), []string{" Bitget "}, exchange.SourceOptions{})

	names := registry.Names()
	if len(names) != 1 || names[0] != entity.ExchangeBitget {
		t.Fatalf("Names() = %v, want [bitget]", names)
	}
}

func TestNewSyncStatePersister(t *testing.T) {
	env := &config.EnvConfig{SyncState: config.SyncStateConfig{Driver: "file", FilePath: "state.json"}}
	persister, err := newSyncStatePersister(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := persister.(*syncstate.FilePersister); !ok {
		t.Errorf("persister = %T, want *syncstate.FilePersister", persister)
	}

	env.TestMode = true
	persister, err = newSyncStatePersister(env, nil)
	if err != nil || persister != nil {
		t.Errorf("test mode persister = %v, %v; want nil", persister, err)
	}

	env.TestMode = false
	env.SyncState.Driver = "etcd"
	if _, err := newSyncStatePersister(env, nil); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRunMigration_RejectsBadInput(t *testing.T) {
	if err := runMigration(nil, "migration/postgresql/commission", "sideways", "", 0); err == nil {
		t.Error("expected error for unknown action")
	}
	if err := runMigration(nil, "migration/postgresql/commission", "create", " ", 0); err == nil {
		t.Error("expected error for create without name")
	}
}
