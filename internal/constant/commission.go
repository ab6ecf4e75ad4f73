package constant

import (
	"fmt"
	"time"
)

const (
	CommissionStreamName       = "commission"
	CommissionStreamSubjectAll = "commission.*.*"

	DefaultWatermarkLookback = 10 * time.Minute
	DefaultTestLookback      = 24 * time.Hour
	DefaultSyncInterval      = 60 * time.Second
	DefaultCycleTimeout      = 45 * time.Second
	DefaultStateFilePath     = "sync_state.json"
	DefaultStateRedisKey     = "rebate-sync:sync-state"

	TradeDateLayout = "2006-01-02"
	QuoteAssetUSDT  = "USDT"

	SubTypeSpot    = "spot"
	SubTypeFutures = "futures"
)

func GetCommissionSubmittedSubject(exchange string) string {
	return fmt.Sprintf("commission.submitted.%s", exchange)
}
