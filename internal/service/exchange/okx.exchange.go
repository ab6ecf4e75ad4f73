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
	okxDefaultBaseURL   = "https://www.okx.com"
	okxRebatePath       = "/api/v5/affiliate/invitee/rebate-records"
	okxSuccessCode      = "0"
	okxDefaultPageLimit = 100
	okxDefaultMaxPages  = 100
	okxDefaultRPS       = 5
)

// OKXExchange reads invitee rebates that OKX already reports in USDT, so it
// never needs a price snapshot. The window is not capped.
type OKXExchange struct {
	commissionSourceBase
	client    *signedClient
	pageLimit int
	maxPages  int
}

type okxResponse struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Data []okxRebateRecord `json:"data"`
}

type okxRebateRecord struct {
	UID        string          `json:"uid"`
	InstType   string          `json:"instType"`
	VolUSDT    decimal.Decimal `json:"volUsdt"`
	RebateUSDT decimal.Decimal `json:"rebateUsdt"`
	Ts         string          `json:"ts"`
}

func NewOKXExchange(cfg config.ExchangeConfig, opts SourceOptions) (*OKXExchange, error) {
	if err := requireCredentials(entity.ExchangeOKX, cfg, true); err != nil {
		return nil, err
	}

	signer := okxSigner{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		passphrase: strings.TrimSpace(cfg.Passphrase),
	}

	return &OKXExchange{
		commissionSourceBase: commissionSourceBase{
			name:       entity.ExchangeOKX,
			exchangeID: cfg.ExchangeID,
			windowCap:  cfg.WindowCap,
			loc:        opts.TradeDateLocation,
		},
		client: newSignedClient(
			entity.ExchangeOKX,
			baseURLOrDefault(cfg.BaseURL, okxDefaultBaseURL),
			opts.HTTPClient,
			valueOrDefault(cfg.RequestsPerSecond, float64(okxDefaultRPS)),
			signer,
		),
		pageLimit: valueOrDefault(cfg.PageLimit, okxDefaultPageLimit),
		maxPages:  valueOrDefault(cfg.MaxPages, okxDefaultMaxPages),
	}, nil
}

func (e *OKXExchange) FetchRaw(ctx context.Context, window entity.SyncWindow) ([]entity.RawCommission, error) {
	var raws []entity.RawCommission

	for page := 1; page <= e.maxPages; page++ {
		query := url.Values{}
		query.Set("begin", strconv.FormatInt(window.Start.UnixMilli(), 10))
		query.Set("end", strconv.FormatInt(window.End.UnixMilli()-1, 10))
		query.Set("limit", strconv.Itoa(e.pageLimit))
		query.Set("page", strconv.Itoa(page))

		body, status, err := e.client.get(ctx, okxRebatePath, query, true)
		if err != nil {
			return nil, err
		}

		var resp okxResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			if status != http.StatusOK {
				return nil, fmt.Errorf("%w: okx status %d", ErrNonSuccessResponse, status)
			}
			return nil, fmt.Errorf("okx decode rebate records: %w", err)
		}
		if status != http.StatusOK || resp.Code != okxSuccessCode {
			return nil, fmt.Errorf("%w: okx status %d code %s: %s", ErrNonSuccessResponse, status, resp.Code, resp.Msg)
		}

		for _, record := range resp.Data {
			ts, err := strconv.ParseInt(record.Ts, 10, 64)
			if err != nil {
				logrus.WithField("uid", record.UID).Warnf("okx rebate record with invalid ts %q", record.Ts)
				continue
			}
			raws = append(raws, entity.RawCommission{
				UID:       record.UID,
				SubType:   okxSubType(record.InstType),
				Asset:     constant.QuoteAssetUSDT,
				Volume:    record.VolUSDT,
				Fee:       record.RebateUSDT,
				Timestamp: time.UnixMilli(ts),
			})
		}

		if len(resp.Data) < e.pageLimit {
			return raws, nil
		}
	}

	return nil, pageLimitError(e.name, e.maxPages)
}

func okxSubType(instType string) string {
	switch strings.ToUpper(instType) {
	case "SPOT", "MARGIN":
		return constant.SubTypeSpot
	case "SWAP", "FUTURES":
		return constant.SubTypeFutures
	default:
		return strings.ToLower(instType)
	}
}
