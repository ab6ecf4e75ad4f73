package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/rebate-sync/internal/entity"
)

type CommissionSubmissionRepository struct {
	db *sqlx.DB
}

func NewCommissionSubmissionRepository(db *sqlx.DB) *CommissionSubmissionRepository {
	return &CommissionSubmissionRepository{db: db}
}

func (r *CommissionSubmissionRepository) Create(ctx context.Context, submission *entity.CommissionSubmission) error {
	query, args, err := insertCommissionSubmissionQuery(submission).ToSql()
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	submission.ID = id

	return nil
}

// GetByTradeDate lists attempts for one exchange and trade date, oldest first.
func (r *CommissionSubmissionRepository) GetByTradeDate(ctx context.Context, exchange entity.ExchangeName, tradeDate string) ([]entity.CommissionSubmission, error) {
	query, args, err := selectCommissionSubmissionsByTradeDateQuery(exchange, tradeDate).ToSql()
	if err != nil {
		return nil, err
	}

	var submissions []entity.CommissionSubmission
	err = r.db.SelectContext(ctx, &submissions, query, args...)
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

func insertCommissionSubmissionQuery(submission *entity.CommissionSubmission) sq.InsertBuilder {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(submission.TableName()).
		Columns(
			"exchange",
			"exchange_id",
			"exchange_uid",
			"sub_type",
			"trade_date",
			"trade_volume_usdt",
			"fee_usdt",
			"dedup_key",
			"status",
			"error_message",
			"source_time",
			"created_at",
		).
		Values(
			submission.Exchange,
			submission.ExchangeID,
			submission.ExchangeUID,
			submission.SubType,
			submission.TradeDate,
			submission.TradeVolumeUSDT,
			submission.FeeUSDT,
			submission.DedupKey,
			submission.Status,
			submission.ErrorMessage,
			submission.SourceTime,
			submission.CreatedAt,
		).
		Suffix("RETURNING id")
}

func selectCommissionSubmissionsByTradeDateQuery(exchange entity.ExchangeName, tradeDate string) sq.SelectBuilder {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From(entity.CommissionSubmission{}.TableName()).
		Where(sq.Eq{
			"exchange":   string(exchange),
			"trade_date": tradeDate,
		}).
		OrderBy("source_time asc", "created_at asc")
}
