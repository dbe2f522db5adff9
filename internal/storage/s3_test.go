package storage_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 内存实现的 S3 客户端
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3aws.PutObjectInput, _ ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3aws.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3aws.GetObjectInput, _ ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3aws.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3aws.HeadObjectInput, _ ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3aws.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3aws.DeleteObjectInput, _ ...func(*s3aws.Options)) (*s3aws.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3aws.DeleteObjectOutput{}, nil
}

// TestS3Backend 测试 S3 存储
func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	backend, err := storage.NewS3Backend(ctx, config.S3Config{
		Bucket: "certs",
		Region: "us-east-1",
		Prefix: "/filedir/",
	}, storage.WithS3Client(client))
	require.NoError(t, err)

	exists, err := backend.Exists(ctx, "aa/bb/aabbcc")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.Put(ctx, "aa/bb/aabbcc", []byte("pdf"), "application/pdf"))
	assert.Contains(t, client.objects, "filedir/aa/bb/aabbcc")
	assert.Equal(t, "application/pdf", client.types["filedir/aa/bb/aabbcc"])

	exists, err = backend.Exists(ctx, "aa/bb/aabbcc")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := backend.Get(ctx, "aa/bb/aabbcc")
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))

	require.NoError(t, backend.Delete(ctx, "aa/bb/aabbcc"))
	_, err = backend.Get(ctx, "aa/bb/aabbcc")
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
}

// TestS3Backend_InvalidConfig 测试缺少 bucket 配置
func TestS3Backend_InvalidConfig(t *testing.T) {
	_, err := storage.NewS3Backend(context.Background(), config.S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}
