package jobs

import (
	"context"

	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
)

// WithdrawalDisburseJob 提现出账任务
// 扫描待处理提现并从主钱包发起链上转账
type WithdrawalDisburseJob struct {
	scheduler.BaseJob
	disburser Runner
}

// NewWithdrawalDisburseJob 创建提现出账任务
func NewWithdrawalDisburseJob(disburser Runner) *WithdrawalDisburseJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameWithdrawalDisburse]

	return &WithdrawalDisburseJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameWithdrawalDisburse,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		disburser: disburser,
	}
}

// Execute 执行提现出账
func (j *WithdrawalDisburseJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	return runAndRecord(ctx, scheduler.JobNameWithdrawalDisburse, j.disburser)
}
