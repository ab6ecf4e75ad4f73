package exchange

import (
	"errors"
	"testing"
	"time"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestClampWindow_LongGap(t *testing.T) {
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	start := end.Add(-45 * 24 * time.Hour)

	window := ClampWindow(start, end, 30*24*time.Hour)

	if want := end.Add(-30 * 24 * time.Hour); !window.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", window.Start, want)
	}
	if !window.End.Equal(end) {
		t.Errorf("End = %v, want %v", window.End, end)
	}
}

func TestClampWindow_NoCap(t *testing.T) {
	end := time.Now()
	start := end.Add(-90 * 24 * time.Hour)

	window := ClampWindow(start, end, 0)
	if !window.Start.Equal(start) {
		t.Errorf("Start = %v, want unchanged %v", window.Start, start)
	}
}

func TestClampWindow_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("window never exceeds cap and keeps end", prop.ForAll(
		func(gapMinutes, capMinutes int64) bool {
			start := end.Add(-time.Duration(gapMinutes) * time.Minute)
			maxSpan := time.Duration(capMinutes) * time.Minute

			window := ClampWindow(start, end, maxSpan)

			if !window.End.Equal(end) {
				return false
			}
			if window.Start.Before(start) {
				return false
			}
			return window.End.Sub(window.Start) <= maxSpan
		},
		gen.Int64Range(0, 120*24*60),
		gen.Int64Range(1, 60*24*60),
	))

	properties.TestingRun(t)
}

func TestNewCommissionSource(t *testing.T) {
	tests := []struct {
		name     string
		exchange entity.ExchangeName
		cfg      config.ExchangeConfig
		wantErr  error
	}{
		{
			name:     "binance without secret",
			exchange: entity.ExchangeBinance,
			cfg:      config.ExchangeConfig{APIKey: "k"},
			wantErr:  ErrMissingCredentials,
		},
		{
			name:     "okx without passphrase",
			exchange: entity.ExchangeOKX,
			cfg:      config.ExchangeConfig{APIKey: "k", APISecret: "s"},
			wantErr:  ErrMissingCredentials,
		},
		{
			name:     "unknown exchange",
			exchange: "kraken",
			cfg:      config.ExchangeConfig{APIKey: "k", APISecret: "s"},
			wantErr:  ErrUnsupportedExchange,
		},
		{
			name:     "bitget ok",
			exchange: entity.ExchangeBitget,
			cfg:      config.ExchangeConfig{APIKey: "k", APISecret: "s", Passphrase: "p"},
		},
		{
			name:     "name is case insensitive",
			exchange: "Binance",
			cfg:      config.ExchangeConfig{APIKey: "k", APISecret: "s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := NewCommissionSource(tt.exchange, tt.cfg, SourceOptions{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if source != nil {
					t.Fatalf("source = %v, want nil", source)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []entity.ExchangeName{entity.ExchangeOKX, entity.ExchangeBinance, entity.ExchangeBitget} {
		source, err := NewCommissionSource(name, config.ExchangeConfig{APIKey: "k", APISecret: "s", Passphrase: "p"}, SourceOptions{})
		if err != nil {
			t.Fatal(err)
		}
		registry.Register(source)
	}

	names := registry.Names()
	want := []entity.ExchangeName{entity.ExchangeBinance, entity.ExchangeBitget, entity.ExchangeOKX}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
	if _, ok := registry.Get(entity.ExchangeOKX); !ok {
		t.Error("okx not registered")
	}
}

func TestNormalizeCommissions(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	ts := time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)

	raws := []entity.RawCommission{
		{UID: "u1", Asset: "BNB", Volume: decimal.NewFromInt(2), Fee: decimal.RequireFromString("0.5"), Timestamp: ts},
		{UID: "u2", Asset: "USDT", Volume: decimal.NewFromInt(100), Fee: decimal.Zero, Timestamp: ts},
		{UID: "u3", Asset: "USDT", Volume: decimal.NewFromInt(100), Fee: decimal.NewFromInt(-1), Timestamp: ts},
		{UID: "u4", Asset: "DOGE", Volume: decimal.NewFromInt(10), Fee: decimal.NewFromInt(3), Timestamp: ts},
		{UID: " ", Asset: "USDT", Fee: decimal.NewFromInt(1), Timestamp: ts},
		{UID: "u5", SubType: "futures", Asset: "usdt", Volume: decimal.NewFromInt(40), Fee: decimal.NewFromInt(2), Timestamp: ts},
	}
	prices := PriceTable{"BNB": decimal.NewFromInt(600)}

	records := NormalizeCommissions(entity.ExchangeBinance, 1, raws, prices, jakarta)
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2: %+v", len(records), records)
	}

	if records[0].ExchangeUID != "u1" || !records[0].FeeUSDT.Equal(decimal.NewFromInt(300)) || !records[0].TradeVolumeUSDT.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("unexpected converted record: %+v", records[0])
	}
	if records[0].TradeDate != "2026-02-02" {
		t.Errorf("TradeDate = %s, want date in configured zone", records[0].TradeDate)
	}
	for _, record := range records {
		if record.ExchangeUID == "u4" {
			t.Errorf("asset without price must not produce a record: %+v", record)
		}
	}
	if records[1].ExchangeUID != "u5" || records[1].SubType != "futures" || !records[1].FeeUSDT.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected usdt record: %+v", records[1])
	}
	for _, record := range records {
		if record.ExchangeID != 1 {
			t.Errorf("ExchangeID = %d, want 1", record.ExchangeID)
		}
	}
}

func TestNormalizeCommissions_FeeFilterProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("only positive fees survive", prop.ForAll(
		func(fees []int64) bool {
			raws := make([]entity.RawCommission, 0, len(fees))
			positive := 0
			for _, fee := range fees {
				if fee > 0 {
					positive++
				}
				raws = append(raws, entity.RawCommission{
					UID:       "u",
					Asset:     "USDT",
					Fee:       decimal.NewFromInt(fee),
					Timestamp: time.Unix(0, 0),
				})
			}

			records := NormalizeCommissions(entity.ExchangeOKX, 2, raws, nil, time.UTC)
			if len(records) != positive {
				return false
			}
			for _, record := range records {
				if !record.FeeUSDT.IsPositive() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-50, 50)),
	))

	properties.TestingRun(t)
}

func TestPriceTable(t *testing.T) {
	prices := PriceTable{"BTC": decimal.NewFromInt(50000)}

	if price, ok := prices.Price("usdt"); !ok || !price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("USDT price = %s, %v", price, ok)
	}
	if _, ok := prices.Price("ETH"); ok {
		t.Error("ETH should be missing")
	}
	if price, ok := prices.Price(" btc "); !ok || !price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("BTC price = %s, %v", price, ok)
	}
}

func TestParsePriceSymbol(t *testing.T) {
	tests := map[string]struct {
		base string
		ok   bool
	}{
		"BNBUSDT":  {"BNB", true},
		"BTC-USDT": {"BTC", true},
		"ETHBTC":   {"", false},
		"USDT":     {"", false},
	}

	for symbol, want := range tests {
		base, ok := parsePriceSymbol(symbol)
		if base != want.base || ok != want.ok {
			t.Errorf("parsePriceSymbol(%q) = %q, %v; want %q, %v", symbol, base, ok, want.base, want.ok)
		}
	}
}
