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
	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	bitgetDefaultBaseURL   = "https://api.bitget.com"
	bitgetCommissionPath   = "/api/v2/broker/customer-commissions"
	bitgetTickersPath      = "/api/v2/spot/market/tickers"
	bitgetSuccessCode      = "00000"
	bitgetDefaultWindowCap = 30 * 24 * time.Hour
	bitgetDefaultPageLimit = 100
	bitgetDefaultMaxPages  = 100
	bitgetDefaultRPS       = 5
)

type BitgetExchange struct {
	commissionSourceBase
	client    *signedClient
	pageLimit int
	maxPages  int
}

type bitgetResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type bitgetCommissionRecord struct {
	ID          string          `json:"id"`
	UID         string          `json:"uid"`
	Coin        string          `json:"coin"`
	BizType     string          `json:"bizType"`
	TradeAmount decimal.Decimal `json:"tradeAmount"`
	Commission  decimal.Decimal `json:"commission"`
	CTime       string          `json:"cTime"`
}

type bitgetTicker struct {
	Symbol string          `json:"symbol"`
	LastPr decimal.Decimal `json:"lastPr"`
}

func NewBitgetExchange(cfg config.ExchangeConfig, opts SourceOptions) (*BitgetExchange, error) {
	if err := requireCredentials(entity.ExchangeBitget, cfg, true); err != nil {
		return nil, err
	}

	signer := bitgetSigner{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		passphrase: strings.TrimSpace(cfg.Passphrase),
	}

	e := &BitgetExchange{
		commissionSourceBase: commissionSourceBase{
			name:       entity.ExchangeBitget,
			exchangeID: cfg.ExchangeID,
			windowCap:  valueOrDefault(cfg.WindowCap, bitgetDefaultWindowCap),
			loc:        opts.TradeDateLocation,
		},
		client: newSignedClient(
			entity.ExchangeBitget,
			baseURLOrDefault(cfg.BaseURL, bitgetDefaultBaseURL),
			opts.HTTPClient,
			valueOrDefault(cfg.RequestsPerSecond, float64(bitgetDefaultRPS)),
			signer,
		),
		pageLimit: valueOrDefault(cfg.PageLimit, bitgetDefaultPageLimit),
		maxPages:  valueOrDefault(cfg.MaxPages, bitgetDefaultMaxPages),
	}
	e.fetchPrice = e.fetchPriceSnapshot

	return e, nil
}

// FetchRaw walks backwards through the window using the idLessThan cursor.
func (e *BitgetExchange) FetchRaw(ctx context.Context, window entity.SyncWindow) ([]entity.RawCommission, error) {
	var (
		raws   []entity.RawCommission
		cursor string
	)

	for page := 0; page < e.maxPages; page++ {
		query := url.Values{}
		query.Set("startTime", strconv.FormatInt(window.Start.UnixMilli(), 10))
		query.Set("endTime", strconv.FormatInt(window.End.UnixMilli()-1, 10))
		query.Set("limit", strconv.Itoa(e.pageLimit))
		if cursor != "" {
			query.Set("idLessThan", cursor)
		}

		records, err := bitgetGet[[]bitgetCommissionRecord](ctx, e.client, bitgetCommissionPath, query, true)
		if err != nil {
			return nil, err
		}

		for _, record := range records {
			ms, err := strconv.ParseInt(record.CTime, 10, 64)
			if err != nil {
				logrus.WithField("id", record.ID).Warnf("bitget commission with invalid cTime %q", record.CTime)
				continue
			}
			raws = append(raws, entity.RawCommission{
				UID:       record.UID,
				SubType:   bitgetSubType(record.BizType),
				Asset:     record.Coin,
				Volume:    record.TradeAmount,
				Fee:       record.Commission,
				Timestamp: time.UnixMilli(ms),
			})
		}

		if len(records) < e.pageLimit {
			return raws, nil
		}
		cursor = records[len(records)-1].ID
	}

	return nil, pageLimitError(e.name, e.maxPages)
}

func (e *BitgetExchange) fetchPriceSnapshot(ctx context.Context) (PriceTable, error) {
	tickers, err := bitgetGet[[]bitgetTicker](ctx, e.client, bitgetTickersPath, nil, false)
	if err != nil {
		return nil, err
	}

	prices := PriceTable{}
	for _, ticker := range tickers {
		if base, ok := parsePriceSymbol(ticker.Symbol); ok {
			prices[base] = ticker.LastPr
		}
	}

	return prices, nil
}

func bitgetGet[T any](ctx context.Context, client *signedClient, path string, query url.Values, signed bool) (T, error) {
	var resp bitgetResponse[T]

	body, status, err := client.get(ctx, path, query, signed)
	if err != nil {
		return resp.Data, err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		if status != http.StatusOK {
			return resp.Data, fmt.Errorf("%w: bitget status %d", ErrNonSuccessResponse, status)
		}
		return resp.Data, fmt.Errorf("bitget decode %s: %w", path, err)
	}
	if status != http.StatusOK || resp.Code != bitgetSuccessCode {
		return resp.Data, fmt.Errorf("%w: bitget status %d code %s: %s", ErrNonSuccessResponse, status, resp.Code, resp.Msg)
	}

	return resp.Data, nil
}

func bitgetSubType(bizType string) string {
	switch strings.ToLower(bizType) {
	case "spot", "margin":
		return constant.SubTypeSpot
	case "mix", "futures", "contract":
		return constant.SubTypeFutures
	default:
		return strings.ToLower(bizType)
	}
}
