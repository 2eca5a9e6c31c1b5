// Package kafka 提供 Kafka 生产者功能
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/heliox-exchange/heliox-custody/internal/model"
	"github.com/heliox-exchange/heliox-custody/pkg/logger"
)

// Kafka 生产者发送的 Topic
const (
	// TopicDeposits 充值入账事件
	// Partition Key: tx_hash
	// 消息格式: model.DepositEvent
	TopicDeposits = "custody-deposits"

	// TopicWithdrawals 提现终态事件
	// Partition Key: transaction_id
	// 消息格式: model.WithdrawalEvent
	TopicWithdrawals = "custody-withdrawals"

	// TopicAlerts 运营告警
	// Partition Key: code
	// 消息格式: model.OperatorAlert
	TopicAlerts = "custody-alerts"
)

// Producer Kafka 生产者
type Producer struct {
	producer sarama.SyncProducer
	mu       sync.RWMutex
	closed   bool
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	RequiredAcks sarama.RequiredAcks
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewProducer 创建生产者
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = cfg.ClientID
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	requiredAcks := cfg.RequiredAcks
	if requiredAcks == 0 {
		requiredAcks = sarama.WaitForAll
	}
	config.Producer.RequiredAcks = requiredAcks

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	config.Producer.Retry.Max = maxRetries

	retryBackoff := cfg.RetryBackoff
	if retryBackoff == 0 {
		retryBackoff = 100 * time.Millisecond
	}
	config.Producer.Retry.Backoff = retryBackoff

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, err
	}

	return &Producer{
		producer: producer,
	}, nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	return p.producer.Close()
}

// send 发送消息
func (p *Producer) send(topic string, key string, value []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errors.New("producer is closed")
	}
	p.mu.RUnlock()

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send kafka message",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	logger.Debug("kafka message sent",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

// SendDepositEvent 发送充值入账事件
func (p *Producer) SendDepositEvent(ctx context.Context, deposit *model.DepositEvent) error {
	data, err := json.Marshal(deposit)
	if err != nil {
		return err
	}

	return p.send(TopicDeposits, deposit.TxHash, data)
}

// SendWithdrawalEvent 发送提现终态事件
func (p *Producer) SendWithdrawalEvent(ctx context.Context, event *model.WithdrawalEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.send(TopicWithdrawals, strconv.FormatInt(event.TransactionID, 10), data)
}

// SendOperatorAlert 发送运营告警
func (p *Producer) SendOperatorAlert(ctx context.Context, alert *model.OperatorAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	return p.send(TopicAlerts, alert.Code, data)
}

// EventPublisher 事件发布器接口
type EventPublisher interface {
	PublishDeposit(ctx context.Context, deposit *model.DepositEvent) error
	PublishWithdrawal(ctx context.Context, event *model.WithdrawalEvent) error
	PublishAlert(ctx context.Context, alert *model.OperatorAlert) error
}

// KafkaEventPublisher Kafka 事件发布器
type KafkaEventPublisher struct {
	producer *Producer
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(producer *Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer: producer,
	}
}

func (p *KafkaEventPublisher) PublishDeposit(ctx context.Context, deposit *model.DepositEvent) error {
	return p.producer.SendDepositEvent(ctx, deposit)
}

func (p *KafkaEventPublisher) PublishWithdrawal(ctx context.Context, event *model.WithdrawalEvent) error {
	return p.producer.SendWithdrawalEvent(ctx, event)
}

func (p *KafkaEventPublisher) PublishAlert(ctx context.Context, alert *model.OperatorAlert) error {
	return p.producer.SendOperatorAlert(ctx, alert)
}
