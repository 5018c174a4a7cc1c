package bundlestore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"tabsdata.io/execcore/internal/catalogerr"
)

// Store puts and gets content-addressed objects: function bundles
// (keyed by the manifest's declared hash) and table-data-version
// payloads (keyed by table/version). It never interprets the bytes.
type Store interface {
	// Put uploads content under key, returning the URI the caller
	// should persist (Bundle.URI / TableDataVersion location). If an
	// object already exists at key with a different MD5, Put fails
	// with a Conflict error rather than overwriting silently — bundles
	// are content-addressed and must not change underfoot.
	Put(ctx context.Context, key string, content io.Reader) (uri string, err error)

	// Get opens the object stored at uri for reading. The caller must
	// close the returned ReadCloser.
	Get(ctx context.Context, uri string) (io.ReadCloser, error)

	// Exists reports whether uri resolves to a stored object.
	Exists(ctx context.Context, uri string) (bool, error)
}

// Config configures an S3-backed Store.
type Config struct {
	Bucket    string
	Region    string
	Prefix    string
	Endpoint  string // non-empty selects a path-style S3-compatible endpoint (MinIO, etc.)
	AccessKey string
	SecretKey string
}

// S3Store is a Store backed by AWS S3 or an S3-compatible endpoint,
// grounded on the teacher's storage.S3AwsListObjects/HetznerUploadFile
// client construction (region + static credentials + optional custom
// endpoint resolver) and its MD5-metadata integrity convention.
type S3Store struct {
	client   S3Client
	uploader *manager.Uploader // nil in tests, where the mock client skips multipart entirely
	bucket   string
	prefix   string
}

// Open constructs an S3Store from cfg, creating a real *s3.Client the
// same way the teacher's S3AwsListObjects/MinioGetObject do: regional
// config plus, when cfg.Endpoint is set, a custom endpoint resolver
// for path-style S3-compatible backends. Uploads go through an
// s3/manager.Uploader so a bundle too large for a single PutObject
// call still succeeds, the same role manager.NewUploader plays in the
// teacher's HetznerUploadFile.
func Open(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bundlestore: failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func newWithClient(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

func (s *S3Store) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.objectKey(key))
}

// Put uploads content under key with an md5 metadata tag, following
// the teacher's HetznerUploadFile integrity convention: compute the
// hash once, store it as object metadata, and let a second Put with
// matching content be a no-op rather than a conflict.
func (s *S3Store) Put(ctx context.Context, key string, content io.Reader) (string, error) {
	buf, err := io.ReadAll(content)
	if err != nil {
		return "", catalogerr.Invalid("bundlestore: failed to read content: %v", err)
	}
	sum := md5.Sum(buf)
	hash := hex.EncodeToString(sum[:])
	objKey := s.objectKey(key)

	if head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(objKey),
	}); err == nil {
		if head.Metadata["md5"] == hash {
			return s.uri(key), nil
		}
		return "", catalogerr.Conflict("bundlestore: object %s already exists with different content", key)
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objKey),
		Body:     bytes.NewReader(buf),
		Metadata: map[string]string{"md5": hash},
	}
	if s.uploader != nil {
		_, err = s.uploader.Upload(ctx, input)
	} else {
		_, err = s.client.PutObject(ctx, input)
	}
	if err != nil {
		return "", catalogerr.Transient("bundlestore: failed to upload %s: %v", key, err)
	}
	return s.uri(key), nil
}

// Get downloads the object at uri, which must be one this Store
// issued (an "s3://bucket/key" URI under its own bucket).
func (s *S3Store) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	key, err := s.keyFromURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, catalogerr.NotFound("bundlestore: object %s not found", uri)
		}
		return nil, catalogerr.Transient("bundlestore: failed to get %s: %v", uri, err)
	}
	return out.Body, nil
}

// Exists reports whether uri resolves to a stored object.
func (s *S3Store) Exists(ctx context.Context, uri string) (bool, error) {
	key, err := s.keyFromURI(uri)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) keyFromURI(uri string) (string, error) {
	prefix := "s3://" + s.bucket + "/"
	if !strings.HasPrefix(uri, prefix) {
		return "", catalogerr.Invalid("bundlestore: uri %q is not a key this store issued", uri)
	}
	return strings.TrimPrefix(uri, prefix), nil
}
