package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sharevault/pkg/sharevault"
)

// fakeClient records single-part uploads.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  map[string]*s3.PutObjectInput
	err     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string][]byte{}, inputs: map[string]*s3.PutObjectInput{}}
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.inputs[aws.ToString(in.Key)] = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeClient) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeClient) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeClient) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestConfigValidate(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		err := Config{AccessKeyID: "k", SecretAccessKey: "s"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		err := Config{Bucket: "media"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key")
	})

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, Config{Bucket: "media", AccessKeyID: "k", SecretAccessKey: "s"}.Validate())
	})
}

func TestBackend_Put(t *testing.T) {
	client := newFakeClient()
	backend := NewWithClient(client, Config{Bucket: "media"})

	err := backend.Put(context.Background(), "uploads/2024/03/01ABC.png", strings.NewReader("png-bytes"), sharevault.PutParams{
		ContentType:  "image/png",
		Size:         9,
		OriginalName: "my photo.png",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("png-bytes"), client.objects["uploads/2024/03/01ABC.png"])
	in := client.inputs["uploads/2024/03/01ABC.png"]
	require.NotNil(t, in)
	assert.Equal(t, "media", aws.ToString(in.Bucket))
	assert.Equal(t, "image/png", aws.ToString(in.ContentType))
	assert.Equal(t, immutableCacheControl, aws.ToString(in.CacheControl))
	assert.Equal(t, "my+photo.png", in.Metadata["original-name"])
}

func TestBackend_PutError(t *testing.T) {
	client := newFakeClient()
	client.err = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	backend := NewWithClient(client, Config{Bucket: "media"})

	err := backend.Put(context.Background(), "k", strings.NewReader("x"), sharevault.PutParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestBackend_PublicURL(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name:     "public prefix",
			config:   Config{Bucket: "media", PublicURLPrefix: "https://cdn.example.com/"},
			expected: "https://cdn.example.com/uploads/a%20b.png",
		},
		{
			name:     "custom endpoint",
			config:   Config{Bucket: "media", Endpoint: "http://localhost:9000"},
			expected: "http://localhost:9000/media/uploads/a%20b.png",
		},
		{
			name:     "aws default",
			config:   Config{Bucket: "media", Region: "eu-west-1"},
			expected: "https://media.s3.eu-west-1.amazonaws.com/uploads/a%20b.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewWithClient(newFakeClient(), tt.config)
			assert.Equal(t, tt.expected, backend.PublicURL("uploads/a b.png"))
		})
	}
}
