package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	s3iface.S3API
	mock.Mock
}

func (m *mockS3Client) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Key))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *mockS3Client) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	args := m.Called(aws.StringValue(in.Key), string(body))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3Client) CopyObjectWithContext(ctx aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	args := m.Called(aws.StringValue(in.CopySource), aws.StringValue(in.Key))
	return &s3.CopyObjectOutput{}, args.Error(0)
}

func (m *mockS3Client) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func newTestS3Backend(m *mockS3Client) *S3Backend {
	return NewS3Backend(m, &S3Config{Bucket: "uploads", UploadTimeoutSeconds: 60})
}

func TestS3CheckFileExists(t *testing.T) {
	modTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		setupMocks    func(*mockS3Client)
		expected      *FileMetadata
		expectedError ErrorType
	}{
		{
			name: "object exists",
			setupMocks: func(m *mockS3Client) {
				m.On("HeadObjectWithContext", "data/a.txt").Return(&s3.HeadObjectOutput{
					ContentLength: aws.Int64(7),
					LastModified:  aws.Time(modTime),
				}, nil).Once()
			},
			expected: &FileMetadata{Exists: true, Size: 7, LastModified: modTime},
		},
		{
			name: "object missing",
			setupMocks: func(m *mockS3Client) {
				m.On("HeadObjectWithContext", "data/a.txt").Return(nil, awserr.New("NotFound", "not found", nil)).Once()
			},
			expected: &FileMetadata{Exists: false},
		},
		{
			name: "access denied",
			setupMocks: func(m *mockS3Client) {
				m.On("HeadObjectWithContext", "data/a.txt").Return(nil, awserr.New("AccessDenied", "denied", nil)).Once()
			},
			expectedError: ErrorTypeAccessDenied,
		},
		{
			name: "key rejected",
			setupMocks: func(m *mockS3Client) {
				m.On("HeadObjectWithContext", "data/a.txt").Return(nil, awserr.New("KeyTooLongError", "too long", nil)).Once()
			},
			expectedError: ErrorTypeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockS3Client{}
			tt.setupMocks(m)

			metadata, err := newTestS3Backend(m).CheckFileExists(context.Background(), "/data/a.txt")

			if tt.expectedError != "" {
				var storageErr *StorageError
				require.ErrorAs(t, err, &storageErr)
				assert.Equal(t, tt.expectedError, storageErr.Type)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, metadata)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestS3UploadAndRename(t *testing.T) {
	m := &mockS3Client{}
	m.On("PutObjectWithContext", "data/.up_a.txt", "payload").Return(nil).Once()
	m.On("CopyObjectWithContext", "uploads/data/.up_a.txt", "data/a.txt").Return(nil).Once()
	m.On("DeleteObjectWithContext", "data/.up_a.txt").Return(nil).Once()
	backend := newTestS3Backend(m)
	ctx := context.Background()

	require.NoError(t, backend.UploadFromReader(ctx, strings.NewReader("payload"), "/data/.up_a.txt"))
	require.NoError(t, backend.MakeDir(ctx, "/data"))
	require.NoError(t, backend.Rename(ctx, "/data/.up_a.txt", "/data/a.txt"))

	assert.Equal(t, BackendTypeS3, backend.GetBackendType())
	m.AssertExpectations(t)
}

func TestS3RenameEncodesCopySource(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		source string
	}{
		{name: "plain", key: "/data/.up_a.txt", source: "uploads/data/.up_a.txt"},
		{name: "space and percent", key: "/dst/.up_q1 report+v2%.csv", source: "uploads/dst/.up_q1%20report+v2%25.csv"},
		{name: "non ascii", key: "/dst/.up_résumé.pdf", source: "uploads/dst/.up_r%C3%A9sum%C3%A9.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockS3Client{}
			m.On("CopyObjectWithContext", tt.source, "dst/final").Return(nil).Once()
			m.On("DeleteObjectWithContext", strings.TrimPrefix(tt.key, "/")).Return(nil).Once()

			require.NoError(t, newTestS3Backend(m).Rename(context.Background(), tt.key, "/dst/final"))
			m.AssertExpectations(t)
		})
	}
}
