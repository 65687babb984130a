package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/bizkeeper/internal/common"
)

// test seams
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 30 * time.Second

// S3Config points the store at an S3-compatible endpoint such as MinIO.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
	Timeout      time.Duration
}

type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements Store on top of aws-sdk-go-v2.
type S3Store struct {
	api     s3API
	presign s3Presigner
	bucket  string
	timeout time.Duration
}

// NewS3Store builds the S3 client with static credentials. No request is
// made until the first operation.
func NewS3Store(ctx context.Context, c S3Config) (*S3Store, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, newS3PresignClient(client), c.Bucket, c.Timeout), nil
}

func newS3Store(api s3API, presign s3Presigner, bucket string, timeout time.Duration) *S3Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &S3Store{api: api, presign: presign, bucket: bucket, timeout: timeout}
}

func (s *S3Store) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return wrapRemote("put object "+key, err)
	}
	return nil
}

func (s *S3Store) GetObjectURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Store) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var out []ObjectInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrapRemote("list objects", err)
		}
		for _, o := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	return out, nil
}

func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapRemote("delete object "+key, err)
	}
	return nil
}

func wrapRemote(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, common.ErrNetworkTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
