package saver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"resumereview/internal/config"
	"resumereview/internal/errors"
	"resumereview/internal/utils"
)

// putObjectAPI is the slice of the S3 client the saver needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads reports to a bucket with server-side encryption
type S3 struct {
	client   putObjectAPI
	bucket   string
	prefix   string
	kmsKeyID string
	logger   *errors.Logger
}

// NewS3 creates an S3 saver using the default AWS credential chain
func NewS3(ctx context.Context, cfg config.S3Config, logger *errors.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "s3 bucket is required", nil)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "load aws config", err)
	}

	return newS3WithClient(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

func newS3WithClient(client putObjectAPI, cfg config.S3Config, logger *errors.Logger) *S3 {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &S3{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   normalizePrefix(cfg.Prefix),
		kmsKeyID: strings.TrimSpace(cfg.KMSKeyID),
		logger:   logger,
	}
}

// Save uploads r as a single object. A failed PutObject leaves nothing behind.
func (s *S3) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	cleanName, err := utils.SanitizeFileName(name)
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid export file name", err)
	}
	if err := ctx.Err(); err != nil {
		return "", saveError("export cancelled", err)
	}

	objectKey := applyPrefix(s.prefix, cleanName)

	body, mimeType, err := sniffContentType(r)
	if err != nil {
		return "", saveError("Failed to read report", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String(mimeType),
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", saveError(fmt.Sprintf("s3 put object bucket=%s key=%s", s.bucket, objectKey), err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)
	s.logger.Info("Report uploaded", "location", location, "content_type", mimeType)
	return location, nil
}

// sniffContentType detects the payload type. Seekable readers are rewound
// so the SDK can still sign and retry them.
func sniffContentType(r io.Reader) (io.Reader, string, error) {
	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return nil, "", fmt.Errorf("read sniff: %w", readErr)
	}
	mimeType := http.DetectContentType(sniff[:n])

	if seeker, ok := r.(io.ReadSeeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err == nil {
			return seeker, mimeType, nil
		}
	}
	return io.MultiReader(bytes.NewReader(sniff[:n]), r), mimeType, nil
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanKey := strings.TrimLeft(key, "/")
	if prefix == "" {
		return cleanKey
	}
	return prefix + "/" + cleanKey
}
