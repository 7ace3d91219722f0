package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/apache/rocketmq-client-go/v2"
	c "github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDeleter struct {
	deleted []string
	err     error
}

func (m *mockDeleter) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, key)
	return nil
}

func cleanupMessage(t *testing.T, key string) *primitive.MessageExt {
	t.Helper()
	body, err := json.Marshal(BlobCleanupMessage{Key: key})
	require.NoError(t, err)

	return newMessageExt(TopicKnowledgeBase, TagBlobCleanup, body)
}

func newMessageExt(topic, tag string, body []byte) *primitive.MessageExt {
	ext := &primitive.MessageExt{Message: primitive.Message{Topic: topic, Body: body}}
	ext.WithTag(tag)
	return ext
}

func TestHandleBlobCleanupMessage_DeletesBlob(t *testing.T) {
	blobs := &mockDeleter{}
	handler := HandleBlobCleanupMessage(blobs)

	require.NoError(t, handler(context.Background(), cleanupMessage(t, "uploads/u1/a.pdf")))
	assert.Equal(t, []string{"uploads/u1/a.pdf"}, blobs.deleted)
}

func TestHandleBlobCleanupMessage_FailureIsRetried(t *testing.T) {
	handler := HandleBlobCleanupMessage(&mockDeleter{err: errors.New("oss unavailable")})

	err := handler(context.Background(), cleanupMessage(t, "uploads/u1/a.pdf"))
	assert.Error(t, err)
}

func TestHandleBlobCleanupMessage_DropsMalformedMessages(t *testing.T) {
	blobs := &mockDeleter{}
	handler := HandleBlobCleanupMessage(blobs)

	msg := newMessageExt(TopicKnowledgeBase, TagBlobCleanup, []byte("not json"))
	assert.NoError(t, handler(context.Background(), msg))
	assert.NoError(t, handler(context.Background(), cleanupMessage(t, "")))
	assert.Empty(t, blobs.deleted)
}

func TestClient_DispatchByTag(t *testing.T) {
	blobs := &mockDeleter{}
	cl := &Client{handlers: map[string]MessageHandler{
		TagBlobCleanup: HandleBlobCleanupMessage(blobs),
	}}

	require.NoError(t, cl.dispatch(context.Background(), cleanupMessage(t, "uploads/u1/b.txt")))
	assert.Equal(t, []string{"uploads/u1/b.txt"}, blobs.deleted)

	unknown := newMessageExt(TopicKnowledgeBase, "tag_unknown", nil)
	assert.NoError(t, cl.dispatch(context.Background(), unknown))
}

type fakeProducer struct {
	rocketmq.Producer
	started  bool
	shutdown bool
}

func (f *fakeProducer) Start() error {
	f.started = true
	return nil
}

func (f *fakeProducer) Shutdown() error {
	f.shutdown = true
	return nil
}

type fakeConsumer struct {
	rocketmq.PushConsumer
	startErr error
}

func (f *fakeConsumer) Subscribe(string, c.MessageSelector, func(context.Context, ...*primitive.MessageExt) (c.ConsumeResult, error)) error {
	return nil
}

func (f *fakeConsumer) Start() error {
	return f.startErr
}

func TestClient_RunShutsDownProducerWhenConsumerFails(t *testing.T) {
	p := &fakeProducer{}
	cl := &Client{
		producer: p,
		consumer: &fakeConsumer{startErr: errors.New("name server unreachable")},
		handlers: map[string]MessageHandler{},
	}

	err := cl.Run()
	require.Error(t, err)
	assert.True(t, p.started)
	assert.True(t, p.shutdown)
}

func TestClient_RunKeepsProducerOnSuccess(t *testing.T) {
	p := &fakeProducer{}
	cl := &Client{producer: p, consumer: &fakeConsumer{}, handlers: map[string]MessageHandler{}}

	require.NoError(t, cl.Run())
	assert.False(t, p.shutdown)
}
