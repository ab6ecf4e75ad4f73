package exchange

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/entity"
)

var (
	ErrMissingCredentials  = errors.New("exchange credentials are missing")
	ErrNonSuccessResponse  = errors.New("exchange returned a non-success response")
	ErrEmptyPriceSnapshot  = errors.New("price snapshot is empty")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrPageLimitReached    = errors.New("page limit reached before end of window")
)

// Registry holds the commission sources built at startup.
type Registry struct {
	sources map[entity.ExchangeName]entity.CommissionSource
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[entity.ExchangeName]entity.CommissionSource)}
}

func (r *Registry) Register(source entity.CommissionSource) {
	r.sources[source.Name()] = source
}

func (r *Registry) Get(name entity.ExchangeName) (entity.CommissionSource, bool) {
	source, ok := r.sources[name]
	return source, ok
}

// Names returns registered exchanges in a stable order.
func (r *Registry) Names() []entity.ExchangeName {
	names := make([]entity.ExchangeName, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

func (r *Registry) Len() int {
	return len(r.sources)
}

type SourceOptions struct {
	HTTPClient        *http.Client
	TradeDateLocation *time.Location
}

// NewCommissionSource builds the adapter for one configured exchange. It
// refuses to build an adapter with incomplete credentials.
func NewCommissionSource(name entity.ExchangeName, cfg config.ExchangeConfig, opts SourceOptions) (entity.CommissionSource, error) {
	if opts.TradeDateLocation == nil {
		opts.TradeDateLocation = time.UTC
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	var (
		source entity.CommissionSource
		err    error
	)
	switch entity.ExchangeName(strings.ToLower(string(name))) {
	case entity.ExchangeBinance:
		source, err = NewBinanceExchange(cfg, opts)
	case entity.ExchangeOKX:
		source, err = NewOKXExchange(cfg, opts)
	case entity.ExchangeBitget:
		source, err = NewBitgetExchange(cfg, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, name)
	}
	if err != nil {
		return nil, err
	}

	return source, nil
}

// ClampWindow limits [start, end) to at most maxSpan. Data older than
// end-maxSpan is skipped, not backfilled.
func ClampWindow(start, end time.Time, maxSpan time.Duration) entity.SyncWindow {
	if maxSpan > 0 {
		if earliest := end.Add(-maxSpan); start.Before(earliest) {
			start = earliest
		}
	}

	return entity.SyncWindow{Start: start, End: end}
}

func requireCredentials(name entity.ExchangeName, cfg config.ExchangeConfig, needPassphrase bool) error {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(cfg.APISecret) == "" {
		missing = append(missing, "api_secret")
	}
	if needPassphrase && strings.TrimSpace(cfg.Passphrase) == "" {
		missing = append(missing, "passphrase")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", ErrMissingCredentials, name, strings.Join(missing, ", "))
	}

	return nil
}

// pageLimitError rejects a fetch that stopped on max_pages so the watermark
// never moves past records that were not read.
func pageLimitError(name entity.ExchangeName, maxPages int) error {
	return fmt.Errorf("%w: %w: %s max_pages=%d", ErrNonSuccessResponse, ErrPageLimitReached, name, maxPages)
}

func valueOrDefault[T int | float64 | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

func baseURLOrDefault(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	return strings.TrimRight(raw, "/")
}
