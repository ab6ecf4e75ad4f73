package infrastructure

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	defaultHTTPClientTimeout       = 15 * time.Second
	defaultHTTPDialTimeout         = 5 * time.Second
	defaultHTTPTLSTimeout          = 5 * time.Second
	defaultHTTPIdleConnTimeout     = 90 * time.Second
	defaultHTTPMaxIdleConns        = 20
	defaultHTTPMaxIdleConnsPerHost = 5
)

type HTTPClientConfig struct {
	Name                string
	Timeout             time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

func DefaultHTTPClientConfig(name string) HTTPClientConfig {
	return HTTPClientConfig{
		Name:                name,
		Timeout:             defaultHTTPClientTimeout,
		DialTimeout:         defaultHTTPDialTimeout,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
		IdleConnTimeout:     defaultHTTPIdleConnTimeout,
		MaxIdleConns:        defaultHTTPMaxIdleConns,
		MaxIdleConnsPerHost: defaultHTTPMaxIdleConnsPerHost,
	}
}

// NewHTTPClient builds the outbound client shared by exchange adapters and
// the backend submitter.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPClientTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultHTTPDialTimeout
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = defaultHTTPTLSTimeout
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = defaultHTTPIdleConnTimeout
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultHTTPMaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = defaultHTTPMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: chainHTTPRoundTripper(
			transport,
			httpRequestIDRoundTripper,
			httpUserAgentRoundTripper,
			httpAccessLogRoundTripper(cfg.Name),
		),
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type httpRoundTripperMiddleware func(http.RoundTripper) http.RoundTripper

func chainHTTPRoundTripper(base http.RoundTripper, middlewares ...httpRoundTripperMiddleware) http.RoundTripper {
	wrapped := base
	for idx := len(middlewares) - 1; idx >= 0; idx-- {
		wrapped = middlewares[idx](wrapped)
	}

	return wrapped
}

func httpRequestIDRoundTripper(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if strings.TrimSpace(r.Header.Get("X-Request-Id")) != "" {
			return next.RoundTrip(r)
		}

		// RoundTrippers must not modify the caller's request.
		r = r.Clone(r.Context())
		r.Header.Set("X-Request-Id", uuid.NewString())

		return next.RoundTrip(r)
	})
}

func httpUserAgentRoundTripper(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("User-Agent") != "" {
			return next.RoundTrip(r)
		}

		r = r.Clone(r.Context())
		userAgent := config.ServiceName
		if config.ServiceVersion != "" {
			userAgent += "/" + config.ServiceVersion
		}
		r.Header.Set("User-Agent", userAgent)

		return next.RoundTrip(r)
	})
}

func httpAccessLogRoundTripper(name string) httpRoundTripperMiddleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			started := time.Now()
			resp, err := next.RoundTrip(r)

			fields := logrus.Fields{
				"client":      name,
				"method":      r.Method,
				"host":        r.URL.Host,
				"path":        r.URL.Path,
				"request_id":  r.Header.Get("X-Request-Id"),
				"duration_ms": time.Since(started).Milliseconds(),
			}
			if err != nil {
				logrus.WithFields(fields).WithError(err).Debug("http request failed")
				return nil, err
			}

			fields["status"] = resp.StatusCode
			logrus.WithFields(fields).Debug("http request done")

			return resp, nil
		})
	}
}
