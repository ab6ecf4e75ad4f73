package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PriceTable maps an asset symbol to its USDT price.
type PriceTable map[string]decimal.Decimal

// Price returns the USDT price of asset. USDT itself is always 1.
func (p PriceTable) Price(asset string) (decimal.Decimal, bool) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" || asset == constant.QuoteAssetUSDT {
		return decimal.NewFromInt(1), true
	}

	price, ok := p[asset]
	return price, ok
}

func needsPriceSnapshot(raws []entity.RawCommission) bool {
	for _, raw := range raws {
		asset := strings.ToUpper(strings.TrimSpace(raw.Asset))
		if asset != "" && asset != constant.QuoteAssetUSDT {
			return true
		}
	}
	return false
}

// NormalizeCommissions converts raw items into backend records. Items without
// a uid or a positive fee, before or after USDT conversion, are dropped. An
// asset missing from prices converts to zero and is therefore dropped too.
func NormalizeCommissions(exchange entity.ExchangeName, exchangeID int64, raws []entity.RawCommission, prices PriceTable, loc *time.Location) []entity.CommissionRecord {
	if loc == nil {
		loc = time.UTC
	}

	records := make([]entity.CommissionRecord, 0, len(raws))
	for _, raw := range raws {
		if !raw.Fee.IsPositive() {
			continue
		}

		uid := strings.TrimSpace(raw.UID)
		if uid == "" {
			logrus.WithField("exchange", exchange).Warn("skip commission without uid")
			continue
		}

		price, ok := prices.Price(raw.Asset)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"exchange": exchange,
				"asset":    raw.Asset,
				"uid":      uid,
			}).Warn("no usdt price for asset, converting as zero")
			price = decimal.Zero
		}

		feeUSDT := raw.Fee.Mul(price)
		if !feeUSDT.IsPositive() {
			continue
		}

		records = append(records, entity.CommissionRecord{
			ExchangeUID:     uid,
			ExchangeID:      exchangeID,
			TradeVolumeUSDT: raw.Volume.Mul(price),
			FeeUSDT:         feeUSDT,
			TradeDate:       raw.Timestamp.In(loc).Format(constant.TradeDateLayout),
			SubType:         raw.SubType,
			SourceTime:      raw.Timestamp,
		})
	}

	return records
}

type priceFetcher func(ctx context.Context) (PriceTable, error)

// commissionSourceBase carries the parts every adapter shares.
type commissionSourceBase struct {
	name       entity.ExchangeName
	exchangeID int64
	windowCap  time.Duration
	loc        *time.Location
	fetchPrice priceFetcher
}

func (b *commissionSourceBase) Name() entity.ExchangeName {
	return b.name
}

func (b *commissionSourceBase) ComputeWindow(start, end time.Time) entity.SyncWindow {
	return ClampWindow(start, end, b.windowCap)
}

// Normalize fetches a price snapshot only when some item is quoted outside
// USDT. A failed or empty snapshot aborts the cycle.
func (b *commissionSourceBase) Normalize(ctx context.Context, raws []entity.RawCommission) ([]entity.CommissionRecord, error) {
	prices := PriceTable{}
	if b.fetchPrice != nil && needsPriceSnapshot(raws) {
		snapshot, err := b.fetchPrice(ctx)
		if err != nil {
			return nil, err
		}
		if len(snapshot) == 0 {
			return nil, ErrEmptyPriceSnapshot
		}
		prices = snapshot
	}

	return NormalizeCommissions(b.name, b.exchangeID, raws, prices, b.loc), nil
}

// parsePriceSymbol keeps pairs quoted in USDT and returns their base asset.
func parsePriceSymbol(symbol string) (string, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	base, ok := strings.CutSuffix(symbol, constant.QuoteAssetUSDT)
	if !ok || base == "" {
		return "", false
	}
	return strings.TrimRight(base, "-_"), true
}
