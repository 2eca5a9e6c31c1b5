package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/metrics"
	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// ExecutionCleanupConfig 执行记录清理配置
type ExecutionCleanupConfig struct {
	// RetentionDays 执行记录保留天数
	RetentionDays int
	// StaleThreshold 超过该时长仍为 running 状态的记录视为卡死
	StaleThreshold time.Duration
	// BatchSize 每批删除的记录数
	BatchSize int
}

// DefaultExecutionCleanupConfig 默认清理配置
var DefaultExecutionCleanupConfig = ExecutionCleanupConfig{
	RetentionDays:  90,
	StaleThreshold: 2 * time.Hour,
	BatchSize:      1000,
}

// ExecutionStore 执行记录清理所需的存储操作
type ExecutionStore interface {
	CleanupOldRecords(ctx context.Context, beforeTime int64, batchSize int) (int64, error)
	MarkStaleRunningAsFailed(ctx context.Context, threshold time.Duration) (int64, error)
}

// ExecutionCleanupJob 执行记录清理任务
// 删除过期的任务执行历史，并将卡死的 running 记录标记为失败
type ExecutionCleanupJob struct {
	scheduler.BaseJob
	store  ExecutionStore
	config ExecutionCleanupConfig
}

// NewExecutionCleanupJob 创建执行记录清理任务
func NewExecutionCleanupJob(store ExecutionStore, config *ExecutionCleanupConfig) *ExecutionCleanupJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameExecutionCleanup]

	jobConfig := DefaultExecutionCleanupConfig
	if config != nil {
		jobConfig = *config
	}

	return &ExecutionCleanupJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameExecutionCleanup,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		store:  store,
		config: jobConfig,
	}
}

// Execute 执行清理
func (j *ExecutionCleanupJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	startTime := time.Now()
	result := &scheduler.JobResult{
		Details: make(map[string]interface{}),
	}

	// 先修复卡死的 running 记录，避免状态查询长期显示任务在执行
	staleCount, err := j.store.MarkStaleRunningAsFailed(ctx, j.config.StaleThreshold)
	if err != nil {
		logger.Error("failed to mark stale executions", zap.Error(err))
		result.ErrorCount++
	} else {
		result.AffectedCount += int(staleCount)
		result.Details["stale_marked"] = staleCount
	}

	// 分批删除过期记录
	beforeTime := time.Now().AddDate(0, 0, -j.config.RetentionDays).UnixMilli()
	totalDeleted := int64(0)
	for {
		select {
		case <-ctx.Done():
			result.Details["deleted"] = totalDeleted
			return result, ctx.Err()
		default:
		}

		deleted, err := j.store.CleanupOldRecords(ctx, beforeTime, j.config.BatchSize)
		if err != nil {
			logger.Error("failed to cleanup old executions", zap.Error(err))
			result.ErrorCount++
			break
		}
		totalDeleted += deleted
		if deleted < int64(j.config.BatchSize) {
			break
		}
	}

	duration := time.Since(startTime)
	result.AffectedCount += int(totalDeleted)
	result.ProcessedCount = result.AffectedCount
	result.Details["deleted"] = totalDeleted
	result.Details["duration_ms"] = duration.Milliseconds()

	status := "success"
	if result.ErrorCount > 0 {
		status = "failed"
	}
	metrics.RecordJobRun(scheduler.JobNameExecutionCleanup, status, duration.Seconds())

	logger.Info("execution cleanup completed",
		zap.Int64("stale_marked", staleCount),
		zap.Int64("deleted", totalDeleted),
		zap.Int("errors", result.ErrorCount))

	return result, nil
}
