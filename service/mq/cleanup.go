package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/rocketmq-client-go/v2/primitive"
)

type BlobCleanupMessage struct {
	Key string `json:"key"`
}

// HandleBlobCleanupMessage 删除残留文件，失败时返回错误由 MQ 稍后重新投递
func HandleBlobCleanupMessage(blobs BlobDeleter) MessageHandler {
	return func(ctx context.Context, msg *primitive.MessageExt) error {
		var payload BlobCleanupMessage
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			// 格式错误的消息重试也无法成功
			slog.Error("Failed to unmarshal blob cleanup message", "msg_id", msg.MsgId, "err", err)
			return nil
		}
		if payload.Key == "" {
			return nil
		}

		if err := blobs.Delete(ctx, payload.Key); err != nil {
			return fmt.Errorf("failed to delete blob %s: %v", payload.Key, err)
		}
		slog.Info("Blob cleaned up", "key", payload.Key)
		return nil
	}
}

// LogQueue 未启用 MQ 时使用，只记录需要人工清理的文件
type LogQueue struct{}

func (LogQueue) EnqueueBlobCleanup(_ context.Context, key string) error {
	slog.Warn("Blob cleanup required", "key", key)
	return nil
}
