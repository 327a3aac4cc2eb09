// Package s3client wraps the AWS S3 SDK for S3-compatible object storage
// (AWS S3, Cloudflare R2, MinIO). It exposes the small set of operations the
// object-backed context store needs, including ETag conditional writes.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("s3client: object not found")

// Config holds object storage client configuration.
type Config struct {
	Endpoint    string // Custom endpoint (R2, MinIO); empty uses AWS
	Region      string // "auto" for R2
	AccessKeyID string // Empty uses the default AWS credential chain
	SecretKey   string
	Bucket      string
	PathStyle   bool
}

// Client provides object storage operations on a single bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a new client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3client: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Get downloads an object and returns its body and ETag.
// Returns ErrNotFound if the object does not exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, string, error) {
	result, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("s3client: get %q: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3client: read %q: %w", key, err)
	}
	return data, trimETag(result.ETag), nil
}

// Put uploads an object unconditionally and returns the new ETag.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	etag, err := c.put(ctx, key, data, contentType, nil)
	if err != nil {
		return "", fmt.Errorf("s3client: put %q: %w", key, err)
	}
	return etag, nil
}

// PutIfAbsent creates an object only if it doesn't exist (If-None-Match: *).
// Returns (false, "", nil) if the object already exists.
func (c *Client) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (bool, string, error) {
	etag, err := c.put(ctx, key, data, contentType, func(in *s3.PutObjectInput) {
		in.IfNoneMatch = aws.String("*")
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("s3client: put if absent %q: %w", key, err)
	}
	return true, etag, nil
}

// PutIfMatch replaces an object only if its ETag still matches.
// Returns (false, "", nil) on ETag mismatch.
func (c *Client) PutIfMatch(ctx context.Context, key string, data []byte, etag, contentType string) (bool, string, error) {
	newETag, err := c.put(ctx, key, data, contentType, func(in *s3.PutObjectInput) {
		in.IfMatch = aws.String("\"" + etag + "\"")
	})
	if err != nil {
		if isPreconditionFailed(err) || isNotFound(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("s3client: put if match %q: %w", key, err)
	}
	return true, newETag, nil
}

func (c *Client) put(ctx context.Context, key string, data []byte, contentType string, mutate func(*s3.PutObjectInput)) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if mutate != nil {
		mutate(input)
	}

	result, err := c.s3.PutObject(ctx, input)
	if err != nil {
		return "", err
	}
	return trimETag(result.ETag), nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3client: delete %q: %w", key, err)
	}
	return nil
}

// List returns every key under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3client: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3client: head bucket: %w", err)
	}
	return nil
}

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), "\"")
}

// isPreconditionFailed checks if the error is a 412 Precondition Failed response.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusPreconditionFailed, http.StatusConflict:
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
