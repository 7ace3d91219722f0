package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"bot-rag-backend/config"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	stscredentials "github.com/aliyun/credentials-go/credentials"
	"github.com/avast/retry-go/v4"
)

const (
	deleteAttempts  = 3
	roleSessionName = "bot-rag-backend"
)

type OSSStore struct {
	client    *oss.Client
	bucket    string
	publicURL string
}

var _ BlobStore = (*OSSStore)(nil)

func NewOSSStore(cfg config.OSSConfig) (*OSSStore, error) {
	provider, err := newCredentialsProvider(cfg)
	if err != nil {
		return nil, err
	}

	client := oss.NewClient(&oss.Config{
		Region:              oss.Ptr(cfg.Region),
		CredentialsProvider: provider,
	})

	return &OSSStore{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: cfg.PublicURL,
	}, nil
}

// 配置了 RoleArn 时通过 STS AssumeRole 获取临时凭证，否则使用静态 AccessKey
func newCredentialsProvider(cfg config.OSSConfig) (credentials.CredentialsProvider, error) {
	if cfg.RoleArn == "" {
		return credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret), nil
	}

	credConfig := new(stscredentials.Config).
		SetType("ram_role_arn").
		SetAccessKeyId(cfg.AccessKeyID).
		SetAccessKeySecret(cfg.AccessKeySecret).
		SetRoleArn(cfg.RoleArn).
		SetRoleSessionName(roleSessionName)

	cred, err := stscredentials.NewCredential(credConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sts credential: %v", err)
	}

	return credentials.CredentialsProviderFunc(func(ctx context.Context) (credentials.Credentials, error) {
		model, err := cred.GetCredential()
		if err != nil {
			return credentials.Credentials{}, fmt.Errorf("failed to get sts credential: %v", err)
		}
		return credentials.Credentials{
			AccessKeyID:     deref(model.AccessKeyId),
			AccessKeySecret: deref(model.AccessKeySecret),
			SecurityToken:   deref(model.SecurityToken),
		}, nil
	}), nil
}

func (s *OSSStore) Put(ctx context.Context, userID, fileName, contentType string, data []byte) (Object, error) {
	key := ObjectKey(userID, fileName)

	_, err := s.client.PutObject(ctx, &oss.PutObjectRequest{
		Bucket:      oss.Ptr(s.bucket),
		Key:         oss.Ptr(key),
		ContentType: oss.Ptr(contentType),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to put object %s: %v", key, err)
	}

	return Object{
		URL: PublicURL(s.publicURL, key),
		Key: key,
	}, nil
}

func (s *OSSStore) Delete(ctx context.Context, key string) error {
	return retry.Do(
		func() error {
			_, err := s.client.DeleteObject(ctx, &oss.DeleteObjectRequest{
				Bucket: oss.Ptr(s.bucket),
				Key:    oss.Ptr(key),
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(deleteAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to delete object",
				"attempt", n+1,
				"key", key,
				"err", err)
		}),
	)
}

func (s *OSSStore) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	result, err := s.client.Presign(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(s.bucket),
		Key:    oss.Ptr(key),
	}, oss.PresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %v", key, err)
	}
	return result.URL, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
