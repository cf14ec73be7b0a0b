package nomenclature

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/hla-matching-engine/internal/domain"
)

// S3Source reads releases stored as objects <prefix>/<version>/<file> in one bucket.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
	logger *logrus.Logger
}

// NewS3Source creates a source using the default AWS credential chain.
func NewS3Source(ctx context.Context, cfg domain.S3Config, logger *logrus.Logger) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, domain.NewValidationError("nomenclature.s3.bucket", "bucket is required for the s3 source", cfg.Bucket)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3SourceWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3SourceWithClient creates a source around an existing client.
func NewS3SourceWithClient(client *s3.Client, bucket, prefix string, logger *logrus.Logger) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ReadLines implements domain.NomenclatureSource. A missing object yields domain.ErrNotFound.
func (s *S3Source) ReadLines(ctx context.Context, version, fileName string) ([]string, error) {
	key := path.Join(s.prefix, version, fileName)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	lines, err := readCleanLines(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"bucket":  s.bucket,
		"key":     key,
		"version": version,
		"lines":   len(lines),
	}).Debug("Read nomenclature object")

	return lines, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
