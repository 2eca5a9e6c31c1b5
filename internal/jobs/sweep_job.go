package jobs

import (
	"context"

	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
)

// SweepJob 资金归集任务
// 将用户充值地址上的资金归集到主钱包，必要时先补充 Gas
type SweepJob struct {
	scheduler.BaseJob
	sweeper Runner
}

// NewSweepJob 创建资金归集任务
func NewSweepJob(sweeper Runner) *SweepJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameSweep]

	return &SweepJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameSweep,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		sweeper: sweeper,
	}
}

// Execute 执行资金归集
func (j *SweepJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	return runAndRecord(ctx, scheduler.JobNameSweep, j.sweeper)
}
