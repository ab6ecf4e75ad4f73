package entity

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusFailed    SubmissionStatus = "FAILED"
)

type CommissionRecord struct {
	ExchangeUID     string
	ExchangeID      int64
	TradeVolumeUSDT decimal.Decimal
	FeeUSDT         decimal.Decimal
	TradeDate       string
	SubType         string
	SourceTime      time.Time
}

// DedupKey identifies a record within one calendar day. Distinct trades by
// the same uid on the same day (and sub type) share a key.
func (r CommissionRecord) DedupKey(exchange ExchangeName) string {
	if r.SubType == "" {
		return fmt.Sprintf("%s:%s:%s", exchange, r.TradeDate, r.ExchangeUID)
	}

	return fmt.Sprintf("%s:%s:%s:%s", exchange, r.TradeDate, r.ExchangeUID, r.SubType)
}

func (r CommissionRecord) ToDailyTradeDataRequest() DailyTradeDataRequest {
	return DailyTradeDataRequest{
		ExchangeUID:     r.ExchangeUID,
		ExchangeID:      r.ExchangeID,
		TradeVolumeUSDT: r.TradeVolumeUSDT.InexactFloat64(),
		FeeUSDT:         r.FeeUSDT.InexactFloat64(),
		TradeDate:       r.TradeDate,
	}
}

// DailyTradeDataRequest is the body of POST /admin/add_daily_trade_data.
type DailyTradeDataRequest struct {
	ExchangeUID     string  `json:"exchange_uid"`
	ExchangeID      int64   `json:"exchange_id"`
	TradeVolumeUSDT float64 `json:"trade_volume_usdt"`
	FeeUSDT         float64 `json:"fee_usdt"`
	TradeDate       string  `json:"trade_date"`
}

type CommissionSubmittedEvent struct {
	Exchange        string          `json:"exchange"`
	ExchangeUID     string          `json:"exchange_uid"`
	ExchangeID      int64           `json:"exchange_id"`
	SubType         string          `json:"sub_type,omitempty"`
	TradeDate       string          `json:"trade_date"`
	TradeVolumeUSDT decimal.Decimal `json:"trade_volume_usdt"`
	FeeUSDT         decimal.Decimal `json:"fee_usdt"`
	SourceTime      time.Time       `json:"source_time"`
	SubmittedAt     time.Time       `json:"submitted_at"`
}

type CommissionSubmission struct {
	ID              string           `db:"id" json:"id"`
	Exchange        string           `db:"exchange" json:"exchange"`
	ExchangeID      int64            `db:"exchange_id" json:"exchange_id"`
	ExchangeUID     string           `db:"exchange_uid" json:"exchange_uid"`
	SubType         null.String      `db:"sub_type" json:"sub_type"`
	TradeDate       string           `db:"trade_date" json:"trade_date"`
	TradeVolumeUSDT decimal.Decimal  `db:"trade_volume_usdt" json:"trade_volume_usdt"`
	FeeUSDT         decimal.Decimal  `db:"fee_usdt" json:"fee_usdt"`
	DedupKey        string           `db:"dedup_key" json:"dedup_key"`
	Status          SubmissionStatus `db:"status" json:"status"`
	ErrorMessage    null.String      `db:"error_message" json:"error_message"`
	SourceTime      time.Time        `db:"source_time" json:"source_time"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

func (c CommissionSubmission) TableName() string {
	return "commission_submissions"
}

// NewCommissionSubmission builds the journal row for one submission attempt.
func NewCommissionSubmission(exchange ExchangeName, record CommissionRecord, submitErr error, now time.Time) *CommissionSubmission {
	submission := &CommissionSubmission{
		Exchange:        string(exchange),
		ExchangeID:      record.ExchangeID,
		ExchangeUID:     record.ExchangeUID,
		SubType:         null.NewString(record.SubType, record.SubType != ""),
		TradeDate:       record.TradeDate,
		TradeVolumeUSDT: record.TradeVolumeUSDT,
		FeeUSDT:         record.FeeUSDT,
		DedupKey:        record.DedupKey(exchange),
		Status:          SubmissionStatusSubmitted,
		SourceTime:      record.SourceTime.UTC(),
		CreatedAt:       now.UTC(),
	}
	if submitErr != nil {
		submission.Status = SubmissionStatusFailed
		submission.ErrorMessage = null.StringFrom(submitErr.Error())
	}

	return submission
}

func NewCommissionSubmittedEvent(exchange ExchangeName, record CommissionRecord, now time.Time) CommissionSubmittedEvent {
	return CommissionSubmittedEvent{
		Exchange:        string(exchange),
		ExchangeUID:     record.ExchangeUID,
		ExchangeID:      record.ExchangeID,
		SubType:         record.SubType,
		TradeDate:       record.TradeDate,
		TradeVolumeUSDT: record.TradeVolumeUSDT,
		FeeUSDT:         record.FeeUSDT,
		SourceTime:      record.SourceTime.UTC(),
		SubmittedAt:     now.UTC(),
	}
}
