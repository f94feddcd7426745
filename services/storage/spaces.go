package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// SpacesConfig holds configuration for the DigitalOcean Spaces store
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// SpacesStore reads uploads from DigitalOcean Spaces over the S3 API
type SpacesStore struct {
	s3Client s3iface.S3API
	bucket   string
}

// NewSpacesStore creates a new Spaces-backed store
func NewSpacesStore(config SpacesConfig) (*SpacesStore, error) {
	if config.Bucket == "" || config.Region == "" {
		return nil, fmt.Errorf("DO_SPACES_BUCKET and DO_SPACES_REGION must be configured")
	}
	if config.Endpoint == "" {
		config.Endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", config.Region)
	}
	if !strings.HasPrefix(config.Endpoint, "http") {
		config.Endpoint = "https://" + config.Endpoint
	}

	// Create AWS session with DigitalOcean Spaces endpoint
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		),
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}

	return NewSpacesStoreWithClient(s3.New(sess), config.Bucket), nil
}

// NewSpacesStoreWithClient wraps an existing S3 client
func NewSpacesStoreWithClient(client s3iface.S3API, bucket string) *SpacesStore {
	return &SpacesStore{s3Client: client, bucket: bucket}
}

// Get downloads an object from Spaces
func (s *SpacesStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

// Put uploads an object to Spaces as a private object
func (s *SpacesStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentType(key)
	}
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ACL:         aws.String("private"),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

// ContentType returns the content type for a filename
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
