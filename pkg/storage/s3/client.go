package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

// Client stores receipt images in an S3 compatible bucket.
type Client struct {
	api       *awss3.Client
	presigner *awss3.PresignClient
	signer    *v4.Signer
	bucket    string
}

// NewClient builds the S3 client from config. Static keys are used when both
// are set; otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg config.S3Config, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	client := newWithAPI(api, cfg.Bucket)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("s3 health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.Bucket), "s3 client initialized")
	}
	return client, nil
}

func newWithAPI(api *awss3.Client, bucket string) *Client {
	signer := v4.NewSigner(func(o *v4.SignerOptions) {
		o.DisableURIPathEscaping = true
	})
	return &Client{
		api:       api,
		presigner: awss3.NewPresignClient(api),
		signer:    signer,
		bucket:    bucket,
	}
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Ping checks the bucket exists and is reachable with the current credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	return err
}

// PresignPut returns a signed PUT URL that only accepts contentType.
func (c *Client) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if err := c.checkKey(key, ttl); err != nil {
		return "", err
	}
	if contentType == "" {
		return "", errors.New("s3: content type is required")
	}
	req, err := c.presigner.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, awss3.WithPresignExpires(ttl), func(o *awss3.PresignOptions) {
		o.Presigner = contentTypeSigner{signer: c.signer, contentType: contentType}
	})
	if err != nil {
		return "", fmt.Errorf("s3: presign put: %w", err)
	}
	if !signsContentType(req.SignedHeader) {
		return "", errors.New("s3: content type missing from signed headers")
	}
	return req.URL, nil
}

// PresignGet returns a signed GET URL for key.
func (c *Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := c.checkKey(key, ttl); err != nil {
		return "", err
	}
	req, err := c.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3: presign get: %w", err)
	}
	return req.URL, nil
}

// Delete removes key. S3 reports success for keys that do not exist.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("s3: key is required")
	}
	_, err := c.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (c *Client) checkKey(key string, ttl time.Duration) error {
	if c == nil || c.presigner == nil {
		return errors.New("s3 client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("s3: key is required")
	}
	if ttl <= 0 {
		return errors.New("s3: ttl must be positive")
	}
	return nil
}

// contentTypeSigner pins Content-Type on the request before signing, so the
// presigned upload rejects any other type.
type contentTypeSigner struct {
	signer      *v4.Signer
	contentType string
}

func (s contentTypeSigner) PresignHTTP(
	ctx context.Context, creds aws.Credentials, r *http.Request,
	payloadHash, service, region string, signingTime time.Time,
	optFns ...func(*v4.SignerOptions),
) (string, http.Header, error) {
	r.Header.Set("Content-Type", s.contentType)
	return s.signer.PresignHTTP(ctx, creds, r, payloadHash, service, region, signingTime, optFns...)
}

func signsContentType(signed http.Header) bool {
	for name := range signed {
		if strings.EqualFold(name, "Content-Type") {
			return true
		}
	}
	return false
}
