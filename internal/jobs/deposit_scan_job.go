package jobs

import (
	"context"

	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
)

// DepositScanJob 充值扫描任务
// 按币种扫描链上区块，发现充值入账并推进扫描游标
type DepositScanJob struct {
	scheduler.BaseJob
	scanner Runner
}

// NewDepositScanJob 创建充值扫描任务
func NewDepositScanJob(scanner Runner) *DepositScanJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameDepositScan]

	return &DepositScanJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameDepositScan,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		scanner: scanner,
	}
}

// Execute 执行充值扫描
func (j *DepositScanJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	return runAndRecord(ctx, scheduler.JobNameDepositScan, j.scanner)
}
