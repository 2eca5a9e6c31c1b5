package jobs

import (
	"context"

	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
)

// BalanceSyncJob 余额同步任务
// 将标记待同步地址的余额变更折算进钱包基准余额
type BalanceSyncJob struct {
	scheduler.BaseJob
	syncer Runner
}

// NewBalanceSyncJob 创建余额同步任务
func NewBalanceSyncJob(syncer Runner) *BalanceSyncJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameBalanceSync]

	return &BalanceSyncJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameBalanceSync,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		syncer: syncer,
	}
}

// Execute 执行余额同步
func (j *BalanceSyncJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	return runAndRecord(ctx, scheduler.JobNameBalanceSync, j.syncer)
}
