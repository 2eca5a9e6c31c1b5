package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/kafka"
	"github.com/heliox-exchange/heliox-custody/internal/metrics"
	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// Notifier 对外通知出口
// 发送失败只记录日志，绝不把错误抛回资金流程
type Notifier interface {
	NotifyDeposit(ctx context.Context, event *model.DepositEvent)
	NotifyWithdrawal(ctx context.Context, event *model.WithdrawalEvent)
	NotifyAlert(ctx context.Context, alert *model.OperatorAlert)
}

// eventNotifier Kafka 实现
type eventNotifier struct {
	publisher kafka.EventPublisher
}

// NewNotifier 创建通知出口
func NewNotifier(publisher kafka.EventPublisher) Notifier {
	return &eventNotifier{publisher: publisher}
}

func (n *eventNotifier) NotifyDeposit(ctx context.Context, event *model.DepositEvent) {
	if err := n.publisher.PublishDeposit(ctx, event); err != nil {
		metrics.RecordKafkaMessage(kafka.TopicDeposits, "failed")
		logger.Error("failed to publish deposit event",
			zap.Int64("transaction_id", event.TransactionID),
			zap.String("tx_hash", event.TxHash),
			zap.Error(err))
		return
	}
	metrics.RecordKafkaMessage(kafka.TopicDeposits, "sent")
}

func (n *eventNotifier) NotifyWithdrawal(ctx context.Context, event *model.WithdrawalEvent) {
	if err := n.publisher.PublishWithdrawal(ctx, event); err != nil {
		metrics.RecordKafkaMessage(kafka.TopicWithdrawals, "failed")
		logger.Error("failed to publish withdrawal event",
			zap.Int64("transaction_id", event.TransactionID),
			zap.String("status", event.Status),
			zap.Error(err))
		return
	}
	metrics.RecordKafkaMessage(kafka.TopicWithdrawals, "sent")
}

func (n *eventNotifier) NotifyAlert(ctx context.Context, alert *model.OperatorAlert) {
	if alert.RaisedAt == 0 {
		alert.RaisedAt = time.Now().UnixMilli()
	}
	if err := n.publisher.PublishAlert(ctx, alert); err != nil {
		metrics.RecordKafkaMessage(kafka.TopicAlerts, "failed")
		logger.Error("failed to publish operator alert",
			zap.String("code", alert.Code),
			zap.String("message", alert.Message),
			zap.Error(err))
		return
	}
	metrics.RecordKafkaMessage(kafka.TopicAlerts, "sent")
}

// logNotifier 仅写日志的通知出口，Kafka 未启用时使用
type logNotifier struct{}

// NewLogNotifier 创建日志通知出口
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) NotifyDeposit(ctx context.Context, event *model.DepositEvent) {
	logger.Info("deposit event",
		zap.Int64("transaction_id", event.TransactionID),
		zap.String("tx_hash", event.TxHash),
		zap.String("amount", event.Amount.String()))
}

func (logNotifier) NotifyWithdrawal(ctx context.Context, event *model.WithdrawalEvent) {
	logger.Info("withdrawal event",
		zap.Int64("transaction_id", event.TransactionID),
		zap.String("status", event.Status))
}

func (logNotifier) NotifyAlert(ctx context.Context, alert *model.OperatorAlert) {
	logger.Warn("operator alert",
		zap.String("level", string(alert.Level)),
		zap.String("code", alert.Code),
		zap.String("message", alert.Message))
}
