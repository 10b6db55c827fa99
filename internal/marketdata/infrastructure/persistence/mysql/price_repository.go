package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

type priceRepository struct {
	db *gorm.DB
}

// NewPriceRepository 创建温层价格存储实例。
func NewPriceRepository(db *gorm.DB) domain.PriceStore {
	return &priceRepository{db: db}
}

// SaveBatch 幂等写入。同一 (ticker, timestamp, interval) 命中唯一键时覆盖旧值，
// 后写胜出，重复调用安全。
func (r *priceRepository) SaveBatch(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	models := make([]*PricePointModel, 0, len(points))
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return err
		}
		models = append(models, toPricePointModel(p))
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ticker"}, {Name: "timestamp"}, {Name: "interval_period"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"price", "currency", "source",
				"open_price", "high_price", "low_price", "close_price", "volume",
				"updated_at",
			}),
		}).
		CreateInBatches(models, 200).Error
	if err != nil {
		return fmt.Errorf("failed to save price points: %w", err)
	}
	return nil
}

func (r *priceRepository) GetRange(ctx context.Context, ticker string, interval domain.Interval, start, end time.Time) ([]*domain.PricePoint, error) {
	var models []*PricePointModel
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND interval_period = ? AND timestamp >= ? AND timestamp < ?",
			ticker, string(interval), start.UTC(), end.UTC()).
		Order("timestamp asc").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	points := make([]*domain.PricePoint, len(models))
	for i, m := range models {
		points[i] = toPricePoint(m)
	}
	return points, nil
}

// PruneSubDaily 按保留期删除日内数据。日线数据永久保留，不在删除范围内。
func (r *priceRepository) PruneSubDaily(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("interval_period <> ? AND timestamp < ?", string(domain.IntervalDaily), olderThan.UTC()).
		Delete(&PricePointModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune sub-daily points: %w", res.Error)
	}
	return res.RowsAffected, nil
}
