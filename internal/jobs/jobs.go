// Package jobs 将各业务服务封装为调度器任务
package jobs

import (
	"context"
	"time"

	"github.com/heliox-exchange/heliox-custody/internal/metrics"
	"github.com/heliox-exchange/heliox-custody/internal/scheduler"
	"github.com/heliox-exchange/heliox-custody/internal/service"
)

// Runner 业务服务的批处理入口
type Runner interface {
	Run(ctx context.Context) (*service.RunStats, error)
}

// runAndRecord 执行服务并转换为任务结果，同时上报监控指标
func runAndRecord(ctx context.Context, jobName string, runner Runner) (*scheduler.JobResult, error) {
	startTime := time.Now()

	stats, err := runner.Run(ctx)
	duration := time.Since(startTime)

	result := &scheduler.JobResult{
		Details: map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
	}
	if stats != nil {
		result.ProcessedCount = stats.Processed
		result.AffectedCount = stats.Succeeded
		result.ErrorCount = stats.Failed
		result.Details["skipped"] = stats.Skipped
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.RecordJobRun(jobName, status, duration.Seconds())

	return result, err
}
