package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	addDailyTradeDataPath = "/admin/add_daily_trade_data"
	maxErrorBodyBytes     = 512
)

var (
	ErrInvalidRecord    = errors.New("invalid commission record")
	ErrUnexpectedStatus = errors.New("unexpected backend response status")
)

// Submitter forwards one normalized record to the backend ledger.
type Submitter interface {
	Submit(ctx context.Context, exchange entity.ExchangeName, record entity.CommissionRecord) error
}

type LedgerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewLedgerClient(cfg config.BackendConfig, httpClient *http.Client) (*LedgerClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, config.ErrMissingBackendURL
	}
	apiKey := strings.TrimSpace(cfg.AdminAPIKey)
	if apiKey == "" {
		return nil, config.ErrMissingBackendKey
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &LedgerClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}, nil
}

func (c *LedgerClient) Submit(ctx context.Context, exchange entity.ExchangeName, record entity.CommissionRecord) error {
	if err := ValidateRecord(record); err != nil {
		return err
	}

	payload, err := json.Marshal(record.ToDailyTradeDataRequest())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+addDailyTradeDataPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post daily trade data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%w: status=%d body=%s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// ValidateRecord mirrors the ledger endpoint's own input checks so that a
// record it would reject is never sent.
func ValidateRecord(record entity.CommissionRecord) error {
	if strings.TrimSpace(record.ExchangeUID) == "" {
		return fmt.Errorf("%w: exchange_uid is empty", ErrInvalidRecord)
	}
	if _, err := time.Parse(constant.TradeDateLayout, record.TradeDate); err != nil {
		return fmt.Errorf("%w: trade_date %q is not YYYY-MM-DD", ErrInvalidRecord, record.TradeDate)
	}
	if record.TradeVolumeUSDT.IsNegative() {
		return fmt.Errorf("%w: negative trade volume", ErrInvalidRecord)
	}

	return nil
}

// DryRunSubmitter only logs what would have been sent.
type DryRunSubmitter struct{}

func NewDryRunSubmitter() *DryRunSubmitter {
	return &DryRunSubmitter{}
}

func (s *DryRunSubmitter) Submit(ctx context.Context, exchange entity.ExchangeName, record entity.CommissionRecord) error {
	if err := ValidateRecord(record); err != nil {
		return err
	}

	req := record.ToDailyTradeDataRequest()
	logrus.WithFields(logrus.Fields{
		"exchange":          exchange,
		"exchange_uid":      req.ExchangeUID,
		"exchange_id":       req.ExchangeID,
		"trade_volume_usdt": req.TradeVolumeUSDT,
		"fee_usdt":          req.FeeUSDT,
		"trade_date":        req.TradeDate,
		"sub_type":          record.SubType,
	}).Info("[test mode] would submit daily trade data")

	return nil
}
