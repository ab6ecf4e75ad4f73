package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ExchangeName string

const (
	ExchangeBinance ExchangeName = "binance"
	ExchangeOKX     ExchangeName = "okx"
	ExchangeBitget  ExchangeName = "bitget"
)

// SyncWindow is the half-open interval [Start, End) fetched by one cycle.
type SyncWindow struct {
	Start time.Time
	End   time.Time
}

func (w SyncWindow) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// RawCommission is an exchange item after envelope parsing but before USDT
// conversion. Volume and Fee are quoted in Asset.
type RawCommission struct {
	UID       string
	SubType   string
	Asset     string
	Volume    decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// CommissionSource is implemented by every exchange adapter driven by the
// commission sync engine.
type CommissionSource interface {
	Name() ExchangeName
	ComputeWindow(start, end time.Time) SyncWindow
	FetchRaw(ctx context.Context, window SyncWindow) ([]RawCommission, error)
	Normalize(ctx context.Context, raws []RawCommission) ([]CommissionRecord, error)
}
