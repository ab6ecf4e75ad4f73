package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/krobus00/rebate-sync/internal/infrastructure"
	"github.com/krobus00/rebate-sync/internal/repository"
	"github.com/krobus00/rebate-sync/internal/service/backend"
	"github.com/krobus00/rebate-sync/internal/service/commissionsync"
	"github.com/krobus00/rebate-sync/internal/service/dedup"
	"github.com/krobus00/rebate-sync/internal/service/exchange"
	"github.com/krobus00/rebate-sync/internal/service/syncstate"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	commissionDatabaseName = "commission"
	syncStateRedisName     = "sync_state"

	syncStateDriverFile  = "file"
	syncStateDriverRedis = "redis"
)

var ErrNoExchangeEnabled = errors.New("no exchange could be started")

// commissionSyncRuntime holds everything a sync command builds at startup.
type commissionSyncRuntime struct {
	service  *commissionsync.CommissionSyncService
	registry *exchange.Registry
	dedup    *dedup.Cache
	locker   commissionsync.CycleLocker

	db          *sqlx.DB
	nc          *nats.Conn
	redisClient *redis.Client
}

func newCommissionSyncRuntime(ctx context.Context, env *config.EnvConfig, only []string) (*commissionSyncRuntime, error) {
	rt := &commissionSyncRuntime{}

	if env.TestMode {
		logrus.Warn("test mode enabled: submissions are logged only and the watermark is never persisted")
	}

	needsRedis := env.CycleLock.Enabled || strings.EqualFold(env.SyncState.Driver, syncStateDriverRedis)
	if needsRedis {
		client, err := infrastructure.NewRedisClient(ctx, env.Redis[syncStateRedisName].CacheDSN)
		if err != nil {
			return nil, err
		}
		rt.redisClient = client
	}

	persister, err := newSyncStatePersister(env, rt.redisClient)
	if err != nil {
		rt.Close()
		return nil, err
	}
	store, err := syncstate.NewStore(ctx, persister)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.dedup = dedup.NewCache(dedup.WithLocation(env.DedupLocation()))

	httpClient := infrastructure.NewHTTPClient(infrastructure.DefaultHTTPClientConfig("exchange"))

	var submitter backend.Submitter = backend.NewDryRunSubmitter()
	if !env.TestMode {
		backendHTTPClient := infrastructure.NewHTTPClient(infrastructure.HTTPClientConfig{
			Name:    "backend",
			Timeout: env.Backend.Timeout,
		})
		ledgerClient, err := backend.NewLedgerClient(env.Backend, backendHTTPClient)
		if err != nil {
			rt.Close()
			return nil, err
		}
		submitter = ledgerClient
	}

	recorders, err := rt.initRecorders(ctx, env)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.service = commissionsync.NewCommissionSyncService(store, rt.dedup, submitter,
		commissionsync.WithTestMode(env.TestMode, env.TestLookback),
		commissionsync.WithRecorders(recorders...),
	)

	rt.registry = buildRegistry(env, only, exchange.SourceOptions{
		HTTPClient:        httpClient,
		TradeDateLocation: env.TradeDateLocation(),
	})
	if rt.registry.Len() == 0 {
		rt.Close()
		return nil, ErrNoExchangeEnabled
	}

	if env.CycleLock.Enabled && rt.redisClient != nil {
		rt.locker = commissionsync.NewRedisCycleLock(rt.redisClient)
	}

	return rt, nil
}

func newSyncStatePersister(env *config.EnvConfig, redisClient *redis.Client) (syncstate.Persister, error) {
	if env.TestMode {
		// test mode never touches the persisted watermark
		return nil, nil
	}

	switch strings.ToLower(env.SyncState.Driver) {
	case "", syncStateDriverFile:
		return syncstate.NewFilePersister(env.SyncState.FilePath), nil
	case syncStateDriverRedis:
		persister, err := syncstate.NewRedisPersister(redisClient, env.SyncState.RedisKey)
		if err != nil {
			return nil, err
		}
		return persister, nil
	default:
		return nil, fmt.Errorf("unknown sync_state driver %q", env.SyncState.Driver)
	}
}

// initRecorders wires the optional submission journal and event stream. Both
// are skipped in test mode.
func (rt *commissionSyncRuntime) initRecorders(ctx context.Context, env *config.EnvConfig) ([]commissionsync.Recorder, error) {
	if env.TestMode {
		return nil, nil
	}

	var recorders []commissionsync.Recorder

	if dbConfig, ok := env.Database[commissionDatabaseName]; ok && strings.TrimSpace(dbConfig.DSN) != "" {
		db, err := infrastructure.NewPostgresConnection(ctx, commissionDatabaseName, dbConfig)
		if err != nil {
			return nil, err
		}
		infrastructure.StartPostgresHealthCheck(ctx, commissionDatabaseName, db, dbConfig.PingInterval)
		rt.db = db

		recorders = append(recorders, commissionsync.NewJournalRecorder(repository.NewCommissionSubmissionRepository(db)))
	}

	if strings.TrimSpace(env.NatsJetstream.URL) != "" {
		nc, js, err := infrastructure.NewJetstream(env.NatsJetstream, constant.CommissionStreamName)
		if err != nil {
			return nil, err
		}
		rt.nc = nc

		eventRecorder := commissionsync.NewEventRecorder(js)
		if err := eventRecorder.JetstreamEventInit(ctx); err != nil {
			return nil, err
		}
		recorders = append(recorders, eventRecorder)
	}

	return recorders, nil
}

// buildRegistry builds adapters for enabled exchanges. An exchange with a bad
// configuration is skipped, the others still start.
func buildRegistry(env *config.EnvConfig, only []string, opts exchange.SourceOptions) *exchange.Registry {
	registry := exchange.NewRegistry()

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			wanted[name] = true
		}
	}

	for name, exchangeConfig := range env.Exchanges {
		name = strings.ToLower(name)
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		if len(wanted) == 0 && !exchangeConfig.Enabled {
			continue
		}

		source, err := exchange.NewCommissionSource(entity.ExchangeName(name), exchangeConfig, opts)
		if err != nil {
			logrus.WithField("exchange", name).WithError(err).Error("exchange disabled: invalid configuration")
			continue
		}
		registry.Register(source)
	}

	return registry
}

func (rt *commissionSyncRuntime) closers() map[string]operation {
	ops := map[string]operation{}
	if rt.db != nil {
		ops["commission database"] = func(ctx context.Context) error {
			return rt.db.Close()
		}
	}
	if rt.nc != nil {
		ops["nats connection"] = func(ctx context.Context) error {
			return infrastructure.CloseJetstream(rt.nc)
		}
	}
	if rt.redisClient != nil {
		ops["redis"] = func(ctx context.Context) error {
			return rt.redisClient.Close()
		}
	}

	return ops
}

func (rt *commissionSyncRuntime) Close() {
	for name, op := range rt.closers() {
		if err := op(context.Background()); err != nil {
			logrus.WithError(err).Warnf("failed to close %s", name)
		}
	}
}
