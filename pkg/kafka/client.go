// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"om-intel-chat/internal/config"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/tasks"
)

// TaskProcessor 处理从 Kafka 收到的提取任务，将消费者与具体的处理管道解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ExtractionTask) error
}

// Producer 包装 kafka.Writer。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BrokerList()...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceExtractionTask 发送一个提取任务到 Kafka，以文档 ID 作为消息 key。
func (p *Producer) ProduceExtractionTask(ctx context.Context, task tasks.ExtractionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理提取任务，直到 ctx 被取消。
// 任务的成败记录在任务表中，因此无论处理结果如何都会提交 offset，不做自动重试。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.BrokerList(),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		if err := handleMessage(ctx, processor, m.Value); err != nil {
			log.Errorf("处理提取任务失败: offset=%d, error=%v", m.Offset, err)
		}
		if err := r.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

func handleMessage(ctx context.Context, processor TaskProcessor, value []byte) error {
	var task tasks.ExtractionTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接跳过，避免阻塞队列
		return fmt.Errorf("无法解析 Kafka 消息: %w, value: %s", err, string(value))
	}
	log.Infof("开始处理提取任务: JobID=%s, DocumentID=%s", task.JobID, task.DocumentID)
	if err := processor.Process(ctx, task); err != nil {
		return err
	}
	log.Infof("提取任务处理完成: JobID=%s", task.JobID)
	return nil
}
