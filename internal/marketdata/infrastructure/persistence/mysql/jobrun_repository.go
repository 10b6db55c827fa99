package mysql

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

type jobRunRepository struct {
	db *gorm.DB
}

// NewJobRunRepository 创建任务执行记录存储实例。
func NewJobRunRepository(db *gorm.DB) domain.JobRunRepository {
	return &jobRunRepository{db: db}
}

func (r *jobRunRepository) Save(ctx context.Context, run *domain.JobRun) error {
	var errs []byte
	if len(run.Errors) > 0 {
		var err error
		errs, err = json.Marshal(run.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal job errors: %w", err)
		}
	}
	model := &JobRunModel{
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Status:     run.Status,
		Attempted:  run.Attempted,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Skipped:    run.Skipped,
		Errors:     string(errs),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save job run: %w", err)
	}
	run.ID = uint64(model.ID)
	return nil
}

func (r *jobRunRepository) Recent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	var models []*JobRunModel
	err := r.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}
	runs := make([]*domain.JobRun, len(models))
	for i, m := range models {
		run := &domain.JobRun{
			ID:         uint64(m.ID),
			StartedAt:  m.StartedAt.UTC(),
			FinishedAt: m.FinishedAt.UTC(),
			Status:     m.Status,
			Attempted:  m.Attempted,
			Succeeded:  m.Succeeded,
			Failed:     m.Failed,
			Skipped:    m.Skipped,
		}
		if m.Errors != "" {
			_ = json.Unmarshal([]byte(m.Errors), &run.Errors)
		}
		runs[i] = run
	}
	return runs, nil
}
