package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/shopspring/decimal"
)

const (
	binanceDefaultBaseURL    = "https://api.binance.com"
	binanceRebatePath        = "/sapi/v1/apiReferral/rebate/recentRecord"
	binanceTickerPricePath   = "/api/v3/ticker/price"
	binanceDefaultWindowCap  = 7 * 24 * time.Hour
	binanceDefaultPageLimit  = 500
	binanceDefaultMaxPages   = 50
	binanceDefaultRPS        = 5
	binanceDefaultRecvWindow = 5000
)

type BinanceExchange struct {
	commissionSourceBase
	client    *signedClient
	pageLimit int
	maxPages  int
}

type binanceRebateRecord struct {
	CustomerID string          `json:"customerId"`
	Email      string          `json:"email"`
	Income     decimal.Decimal `json:"income"`
	Asset      string          `json:"asset"`
	Symbol     string          `json:"symbol"`
	TradeID    int64           `json:"tradeId"`
	Time       int64           `json:"time"`
	Status     int             `json:"status"`
}

type binanceErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewBinanceExchange(cfg config.ExchangeConfig, opts SourceOptions) (*BinanceExchange, error) {
	if err := requireCredentials(entity.ExchangeBinance, cfg, false); err != nil {
		return nil, err
	}

	signer := binanceSigner{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		recvWindow: binanceDefaultRecvWindow,
	}

	e := &BinanceExchange{
		commissionSourceBase: commissionSourceBase{
			name:       entity.ExchangeBinance,
			exchangeID: cfg.ExchangeID,
			windowCap:  valueOrDefault(cfg.WindowCap, binanceDefaultWindowCap),
			loc:        opts.TradeDateLocation,
		},
		client: newSignedClient(
			entity.ExchangeBinance,
			baseURLOrDefault(cfg.BaseURL, binanceDefaultBaseURL),
			opts.HTTPClient,
			valueOrDefault(cfg.RequestsPerSecond, float64(binanceDefaultRPS)),
			signer,
		),
		pageLimit: min(valueOrDefault(cfg.PageLimit, binanceDefaultPageLimit), binanceDefaultPageLimit),
		maxPages:  valueOrDefault(cfg.MaxPages, binanceDefaultMaxPages),
	}
	e.fetchPrice = e.fetchPriceSnapshot

	return e, nil
}

// FetchRaw pages forward through the rebate records in the window. A full
// page continues from one millisecond after its newest record.
func (e *BinanceExchange) FetchRaw(ctx context.Context, window entity.SyncWindow) ([]entity.RawCommission, error) {
	var (
		raws   []entity.RawCommission
		cursor = window.Start.UnixMilli()
		endMs  = window.End.UnixMilli() - 1
	)

	for page := 0; page < e.maxPages && cursor <= endMs; page++ {
		query := url.Values{}
		query.Set("startTime", strconv.FormatInt(cursor, 10))
		query.Set("endTime", strconv.FormatInt(endMs, 10))
		query.Set("limit", strconv.Itoa(e.pageLimit))

		body, status, err := e.client.get(ctx, binanceRebatePath, query, true)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, binanceError(status, body)
		}

		var records []binanceRebateRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("binance decode rebate records: %w", err)
		}

		newest := cursor
		for _, record := range records {
			if record.Time > newest {
				newest = record.Time
			}
			raws = append(raws, entity.RawCommission{
				UID:       record.CustomerID,
				Asset:     record.Asset,
				Volume:    decimal.Zero,
				Fee:       record.Income,
				Timestamp: time.UnixMilli(record.Time),
			})
		}

		if len(records) < e.pageLimit {
			return raws, nil
		}
		cursor = newest + 1
	}

	if cursor <= endMs {
		return nil, pageLimitError(e.name, e.maxPages)
	}

	return raws, nil
}

func (e *BinanceExchange) fetchPriceSnapshot(ctx context.Context) (PriceTable, error) {
	body, status, err := e.client.get(ctx, binanceTickerPricePath, nil, false)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, binanceError(status, body)
	}

	var tickers []struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("binance decode ticker prices: %w", err)
	}

	prices := PriceTable{}
	for _, ticker := range tickers {
		if base, ok := parsePriceSymbol(ticker.Symbol); ok {
			prices[base] = ticker.Price
		}
	}

	return prices, nil
}

func binanceError(status int, body []byte) error {
	var resp binanceErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Msg != "" {
		return fmt.Errorf("%w: binance status %d code %d: %s", ErrNonSuccessResponse, status, resp.Code, resp.Msg)
	}
	return fmt.Errorf("%w: binance status %d", ErrNonSuccessResponse, status)
}
