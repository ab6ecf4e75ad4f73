package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/rebate-sync/internal/config"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var ErrMissingDSN = errors.New("database dsn is required")

const (
	defaultConnectTimeout = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultMinJitter      = 100 * time.Millisecond
	defaultMaxJitter      = 1 * time.Second
	defaultMaxIdleConns   = 10
	defaultMaxOpenConns   = 100
	defaultConnLifetime   = 1 * time.Hour
)

// postgresSettings is a DatabaseConfig with defaults applied.
type postgresSettings struct {
	connectTimeout  time.Duration
	maxRetry        int
	backoffFactor   float64
	minJitter       time.Duration
	maxJitter       time.Duration
	maxIdleConns    int
	maxOpenConns    int
	maxConnLifetime time.Duration
}

func newPostgresSettings(cfg config.DatabaseConfig) postgresSettings {
	settings := postgresSettings{
		connectTimeout:  defaultConnectTimeout,
		backoffFactor:   defaultBackoffFactor,
		minJitter:       defaultMinJitter,
		maxJitter:       defaultMaxJitter,
		maxIdleConns:    defaultMaxIdleConns,
		maxOpenConns:    defaultMaxOpenConns,
		maxConnLifetime: defaultConnLifetime,
	}

	if cfg.PingInterval > 0 {
		settings.connectTimeout = cfg.PingInterval
	}
	if cfg.MaxRetry > 0 {
		settings.maxRetry = cfg.MaxRetry
	}
	if cfg.ReconnectFactor >= 1 {
		settings.backoffFactor = cfg.ReconnectFactor
	}
	if cfg.MinJitter > 0 {
		settings.minJitter = cfg.MinJitter
	}
	if cfg.MaxJitter > 0 {
		settings.maxJitter = cfg.MaxJitter
	}
	if settings.maxJitter < settings.minJitter {
		settings.maxJitter = settings.minJitter
	}
	if cfg.MaxIdleConns > 0 {
		settings.maxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxActiveConns > 0 {
		settings.maxOpenConns = cfg.MaxActiveConns
	}
	if cfg.MaxConnLifetime > 0 {
		settings.maxConnLifetime = cfg.MaxConnLifetime
	}

	return settings
}

// NewPostgresConnection opens the named database from the database map with
// retries and jittered backoff. The submission journal is its only user.
func NewPostgresConnection(ctx context.Context, name string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingDSN, name)
	}

	settings := newPostgresSettings(cfg)
	logger := logrus.WithFields(logrus.Fields{
		"database":     name,
		"postgres_dsn": maskDSN(cfg.DSN),
	})

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error

	for attempt := 0; attempt <= settings.maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, settings.connectTimeout)
		db, err := sqlx.ConnectContext(attemptCtx, "postgres", cfg.DSN)
		cancel()
		if err == nil {
			db.SetMaxIdleConns(settings.maxIdleConns)
			db.SetMaxOpenConns(settings.maxOpenConns)
			db.SetConnMaxLifetime(settings.maxConnLifetime)
			if cfg.PingInterval > 0 {
				db.SetConnMaxIdleTime(cfg.PingInterval)
			}

			logger.WithFields(logrus.Fields{
				"attempts":         attempt + 1,
				"max_idle_conns":   settings.maxIdleConns,
				"max_active_conns": settings.maxOpenConns,
			}).Info("journal database connected")

			return db, nil
		}

		lastErr = err
		if attempt == settings.maxRetry {
			break
		}

		wait := backoffWithJitter(attempt, settings.backoffFactor, settings.minJitter, settings.maxJitter, rng)
		logger.WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"retry_in": wait.String(),
		}).WithError(err).Warn("journal database unreachable, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("connect %s database after %d attempts: %w", name, settings.maxRetry+1, lastErr)
}

// StartPostgresHealthCheck pings db every interval until ctx is done. A failed
// ping is only logged, the journal recorder reports its own write errors.
func StartPostgresHealthCheck(ctx context.Context, name string, db *sqlx.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, interval)
				err := db.PingContext(pingCtx)
				cancel()
				if err != nil {
					logrus.WithField("database", name).WithError(err).Error("journal database health check failed")
				}
			}
		}
	}()
}

func maskDSN(dsn string) string {
	idx := strings.Index(dsn, "@")
	if idx == -1 {
		return dsn
	}

	prefix := dsn[:idx]
	credsIdx := strings.LastIndex(prefix, "://")
	if credsIdx == -1 {
		return "***" + dsn[idx:]
	}

	return prefix[:credsIdx+3] + "***" + dsn[idx:]
}
