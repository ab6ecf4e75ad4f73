package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/shopspring/decimal"
)

func TestInsertCommissionSubmissionQuery(t *testing.T) {
	record := entity.CommissionRecord{
		ExchangeUID:     "42",
		ExchangeID:      1,
		TradeVolumeUSDT: decimal.NewFromInt(100),
		FeeUSDT:         decimal.RequireFromString("0.25"),
		TradeDate:       "2026-04-01",
		SubType:         "spot",
		SourceTime:      time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
	}
	submission := entity.NewCommissionSubmission(entity.ExchangeBitget, record, errors.New("backend down"), time.Now())

	query, args, err := insertCommissionSubmissionQuery(submission).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	if !strings.HasPrefix(query, "INSERT INTO commission_submissions (exchange,exchange_id,exchange_uid,sub_type,") {
		t.Errorf("unexpected query: %s", query)
	}
	if !strings.Contains(query, "$12") || !strings.HasSuffix(query, "RETURNING id") {
		t.Errorf("unexpected placeholders or suffix: %s", query)
	}
	if len(args) != 12 {
		t.Fatalf("len(args) = %d, want 12", len(args))
	}
	if args[7] != "bitget:2026-04-01:42:spot" {
		t.Errorf("dedup_key arg = %v", args[7])
	}
	if args[8] != entity.SubmissionStatusFailed {
		t.Errorf("status arg = %v, want FAILED", args[8])
	}
}

func TestSelectCommissionSubmissionsByTradeDateQuery(t *testing.T) {
	query, args, err := selectCommissionSubmissionsByTradeDateQuery(entity.ExchangeOKX, "2026-04-01").ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	want := "SELECT * FROM commission_submissions WHERE exchange = $1 AND trade_date = $2 ORDER BY source_time asc, created_at asc"
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if len(args) != 2 || args[0] != "okx" || args[1] != "2026-04-01" {
		t.Errorf("args = %v", args)
	}
}
