package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bot-rag-backend/config"

	"github.com/apache/rocketmq-client-go/v2"
	c "github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
	"github.com/avast/retry-go/v4"
)

const (
	TopicKnowledgeBase = "topic_knowledge_base"
	TagBlobCleanup     = "tag_blob_cleanup"

	consumeGroupKnowledgeBase = "cg_knowledge_base"

	sendMessageAttempts  = 3
	maxReconsumeTimes    = 5
	consumeGoroutineNums = 4
)

type MessageHandler func(context.Context, *primitive.MessageExt) error

type Message struct {
	Topic   string
	Tag     string
	Payload any
}

// BlobDeleter 删除不存在的 key 时返回 nil
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Client 知识库业务的生产者和消费者
type Client struct {
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer

	// 按 tag 分发的消息处理器
	handlers map[string]MessageHandler
}

func New(cfg config.MQConfig, blobs BlobDeleter) (*Client, error) {
	// 设置RocketMQ客户端（使用rlog）的日志级别
	rlog.SetLogLevel("warn")

	consumer, err := rocketmq.NewPushConsumer(
		c.WithNameServer([]string{cfg.NameServer}),
		c.WithGroupName(consumeGroupKnowledgeBase),
		c.WithConsumerModel(c.Clustering),
		c.WithConsumeFromWhere(c.ConsumeFromLastOffset),
		c.WithMaxReconsumeTimes(maxReconsumeTimes),
		c.WithConsumeGoroutineNums(consumeGoroutineNums),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %v", err)
	}

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{cfg.NameServer}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %v", err)
	}

	return &Client{
		producer: p,
		consumer: consumer,
		handlers: map[string]MessageHandler{
			TagBlobCleanup: HandleBlobCleanupMessage(blobs),
		},
	}, nil
}

func (cl *Client) Run() error {
	if err := cl.subscribe(TopicKnowledgeBase); err != nil {
		return fmt.Errorf("failed to register handler, topic: %s, err: %v", TopicKnowledgeBase, err)
	}

	if err := cl.producer.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %v", err)
	}

	if err := cl.consumer.Start(); err != nil {
		// 生产者已启动，需要关闭
		if shutdownErr := cl.producer.Shutdown(); shutdownErr != nil {
			slog.Warn("Failed to shut down producer", "err", shutdownErr)
		}
		return fmt.Errorf("failed to start consumer: %v", err)
	}
	return nil
}

func (cl *Client) subscribe(topic string) error {
	selector := c.MessageSelector{
		Type:       c.TAG,
		Expression: TagBlobCleanup,
	}

	err := cl.consumer.Subscribe(topic, selector, func(ctx context.Context, messages ...*primitive.MessageExt) (c.ConsumeResult, error) {
		for _, msg := range messages {
			if err := cl.dispatch(ctx, msg); err != nil {
				slog.Error("Failed to process message",
					"topic", msg.Topic,
					"msg_id", msg.MsgId,
					"err", err)
				return c.ConsumeRetryLater, err
			}
		}
		return c.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %v", topic, err)
	}
	return nil
}

func (cl *Client) dispatch(ctx context.Context, msg *primitive.MessageExt) error {
	h := cl.handlers[msg.GetTags()]
	if h == nil {
		slog.Warn("No message handler found for tag", "topic", msg.Topic, "tag", msg.GetTags())
		return nil
	}
	return h(ctx, msg)
}

// SendMessage 向MQ发送消息
func (cl *Client) SendMessage(ctx context.Context, message *Message) error {
	payloadJSON, err := json.Marshal(message.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	msg := primitive.NewMessage(message.Topic, payloadJSON)
	if message.Tag != "" {
		msg = msg.WithTag(message.Tag)
	}

	err = retry.Do(
		func() error {
			_, err := cl.producer.SendSync(ctx, msg)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(sendMessageAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to send message",
				"attempt", n+1,
				"topic", msg.Topic,
				"err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s after retries: %v", msg.Topic, err)
	}
	return nil
}

// EnqueueBlobCleanup 投递文件删除任务，由消费者异步重试
func (cl *Client) EnqueueBlobCleanup(ctx context.Context, key string) error {
	return cl.SendMessage(ctx, &Message{
		Topic:   TopicKnowledgeBase,
		Tag:     TagBlobCleanup,
		Payload: BlobCleanupMessage{Key: key},
	})
}

// Shutdown 关闭MQ服务
func (cl *Client) Shutdown() {
	if err := cl.producer.Shutdown(); err != nil {
		slog.Warn("Failed to shut down producer", "err", err)
	}
	if err := cl.consumer.Shutdown(); err != nil {
		slog.Warn("Failed to shut down consumer", "err", err)
	}
}
