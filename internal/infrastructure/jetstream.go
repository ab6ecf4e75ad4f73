package infrastructure

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	defaultNatsMaxRetries      = 10
	defaultNatsBackoffFactor   = 2.0
	defaultNatsMinJitter       = 100 * time.Millisecond
	defaultNatsMaxJitter       = 2 * time.Second
	defaultNatsConnectTimeout  = 5 * time.Second
	defaultNatsDrainTimeout    = 10 * time.Second
	defaultNatsPingInterval    = 30 * time.Second
	defaultNatsPingOutstanding = 3
	defaultJetStreamMaxWait    = 5 * time.Second
)

var ErrMissingNatsURL = errors.New("nats jetstream url is required")

// natsSettings is a NatsJetstreamConfig with defaults applied.
type natsSettings struct {
	maxRetries    int
	backoffFactor float64
	minJitter     time.Duration
	maxJitter     time.Duration
}

func newNatsSettings(cfg config.NatsJetstreamConfig) natsSettings {
	settings := natsSettings{
		maxRetries:    defaultNatsMaxRetries,
		backoffFactor: defaultNatsBackoffFactor,
		minJitter:     defaultNatsMinJitter,
		maxJitter:     defaultNatsMaxJitter,
	}

	if cfg.MaxRetries > 0 {
		settings.maxRetries = cfg.MaxRetries
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

	return settings
}

// natsClientName identifies this publisher on the server, e.g.
// "rebate-sync/commission".
func natsClientName(stream string) string {
	return config.ServiceName + "/" + stream
}

// NewJetstream connects the publisher for stream. Reconnects use the same
// jittered backoff as the journal database.
func NewJetstream(cfg config.NatsJetstreamConfig, stream string) (nc *nats.Conn, js nats.JetStreamContext, err error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil, ErrMissingNatsURL
	}

	settings := newNatsSettings(cfg)
	logger := logrus.WithField("stream", stream)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	nc, err = nats.Connect(cfg.URL,
		nats.Name(natsClientName(stream)),
		nats.Timeout(defaultNatsConnectTimeout),
		nats.DrainTimeout(defaultNatsDrainTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(settings.maxRetries),
		nats.PingInterval(defaultNatsPingInterval),
		nats.MaxPingsOutstanding(defaultNatsPingOutstanding),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			wait := backoffWithJitter(attempts, settings.backoffFactor, settings.minJitter, settings.maxJitter, rng)
			logger.WithFields(logrus.Fields{
				"attempt":  attempts,
				"retry_in": wait.String(),
			}).Warn("commission event stream reconnecting")
			return wait
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, disErr error) {
			logger.WithError(disErr).Warn("commission event stream disconnected, submissions continue without events")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.WithField("url", conn.ConnectedUrl()).Info("commission event stream reconnected")
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			logger.WithError(conn.LastError()).Warn("commission event stream closed")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats for stream %s: %w", stream, err)
	}

	js, err = nc.JetStream(
		nats.PublishAsyncMaxPending(256),
		nats.MaxWait(defaultJetStreamMaxWait),
	)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context for stream %s: %w", stream, err)
	}

	logger.WithFields(logrus.Fields{
		"url":         cfg.URL,
		"client_name": natsClientName(stream),
		"max_retries": settings.maxRetries,
	}).Info("commission event stream connected")

	return nc, js, nil
}

func CloseJetstream(nc *nats.Conn) error {
	if nc == nil {
		return nil
	}

	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}

	nc.Close()
	return nil
}
