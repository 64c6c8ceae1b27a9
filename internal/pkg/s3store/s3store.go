// Package s3store is a thin S3 upload client shared by backups and
// manuscript exports. It speaks to AWS or any S3-compatible endpoint
// (MinIO, R2, OSS) configured through the runtime S3 options.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appcfg "github.com/neperienx/bookpipeline/internal/config"
)

// ErrNotConfigured is returned when the S3 options lack any of bucket,
// region or credentials.
var ErrNotConfigured = errors.New("incomplete s3 config: bucket/region/access_key_id/secret_access_key are required")

type Store struct {
	client       *s3.Client
	bucket       string
	endpoint     *url.URL
	customDomain string
	pathStyle    bool
}

func New(opts appcfg.S3Options) (*Store, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	region := strings.TrimSpace(opts.Region)
	accessKey := strings.TrimSpace(opts.AccessKeyID)
	secretKey := strings.TrimSpace(opts.SecretAccessKey)
	if bucket == "" || region == "" || accessKey == "" || secretKey == "" {
		return nil, ErrNotConfigured
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	hasCustomEndpoint := endpoint != ""
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid s3 endpoint: %s", endpoint)
	}

	// Most S3-compatible endpoints don't resolve bucket subdomains, so a
	// custom endpoint defaults to path-style addressing.
	pathStyle := opts.PathStyleAccess
	if hasCustomEndpoint && !opts.PathStyleAccess {
		pathStyle = true
	}

	cfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		HTTPClient:  &http.Client{Timeout: 45 * time.Second},
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if hasCustomEndpoint {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	return &Store{
		client:       client,
		bucket:       bucket,
		endpoint:     parsed,
		customDomain: strings.TrimRight(strings.TrimSpace(opts.CustomDomain), "/"),
		pathStyle:    pathStyle,
	}, nil
}

// Upload puts one object and returns its public URL.
func (s *Store) Upload(ctx context.Context, objectKey string, payload []byte, contentType string) (string, error) {
	key := normalizeObjectKey(objectKey)
	if key == "" {
		return "", fmt.Errorf("invalid s3 object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return s.ObjectURL(key), nil
}

// ObjectURL builds the public URL for an object: the custom domain when
// set, otherwise the endpoint in the configured addressing style.
func (s *Store) ObjectURL(objectKey string) string {
	key := normalizeObjectKey(objectKey)
	if s.customDomain != "" {
		return s.customDomain + "/" + key
	}

	basePath := strings.TrimSuffix(s.endpoint.Path, "/")
	if s.pathStyle {
		return s.endpoint.Scheme + "://" + s.endpoint.Host + joinURLPath(basePath, s.bucket, encodeObjectKey(key))
	}

	host := s.endpoint.Host
	if !strings.HasPrefix(strings.ToLower(host), strings.ToLower(s.bucket)+".") {
		host = s.bucket + "." + host
	}
	return s.endpoint.Scheme + "://" + host + joinURLPath(basePath, encodeObjectKey(key))
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}

func encodeObjectKey(key string) string {
	key = normalizeObjectKey(key)
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func joinURLPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for _, seg := range strings.Split(p, "/") {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
