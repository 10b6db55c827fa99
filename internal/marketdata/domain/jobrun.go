package domain

import "time"

// 刷新任务执行状态
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobRun 一次后台刷新任务的执行记录。任务开始时创建，结束时定稿，此后不可变。
// 仅用于可观测性。
type JobRun struct {
	ID         uint64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Attempted  int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     []string
}

// NewJobRun 在任务启动时创建执行记录。
func NewJobRun(now time.Time) *JobRun {
	return &JobRun{StartedAt: now.UTC(), Status: JobStatusRunning}
}

// RecordError 记录单个股票的失败，任务本身继续执行。
func (r *JobRun) RecordError(ticker string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ticker+": "+err.Error())
}

// Finish 定稿执行记录。全部尝试均失败时任务整体标记为失败。
func (r *JobRun) Finish(now time.Time) {
	r.FinishedAt = now.UTC()
	if r.Attempted > 0 && r.Failed == r.Attempted {
		r.Status = JobStatusFailed
		return
	}
	r.Status = JobStatusCompleted
}
