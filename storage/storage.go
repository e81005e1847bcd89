// Package storage reads and writes whole firmware images on the local
// filesystem or in S3.
//
// Locations are either local paths or URLs of the form s3://bucket/key.
package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

const s3Scheme = "s3://"

// ObjectAPI is the subset of *s3.Client used by Store.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the S3 backend.
type Options struct {
	// Region is the AWS region; empty uses the SDK default chain
	Region string

	// Anonymous disables request signing, for public buckets
	Anonymous bool
}

// Location is a parsed storage location.
type Location struct {
	// Path is set for local locations
	Path string

	// Bucket and Key are set for S3 locations
	Bucket string
	Key    string
}

// IsS3 reports whether the location refers to an S3 object.
func (l Location) IsS3() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.IsS3() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation splits loc into a local path or an S3 bucket and key.
func ParseLocation(loc string) (Location, error) {
	if loc == "" {
		return Location{}, errors.New("empty location")
	}
	if !strings.HasPrefix(loc, s3Scheme) {
		return Location{Path: loc}, nil
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(loc, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, errors.Errorf("invalid S3 location %q, expected s3://bucket/key", loc)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Store reads and writes byte buffers at locations.
type Store struct {
	opts Options
	api  ObjectAPI
}

// New creates a Store. The S3 client is created on first use so that
// purely local use never loads AWS configuration.
func New(opts Options) *Store {
	return &Store{opts: opts}
}

// NewWithClient creates a Store that uses api for S3 locations.
func NewWithClient(api ObjectAPI) *Store {
	return &Store{api: api}
}

// ReadAll returns the full contents of loc.
func (s *Store) ReadAll(ctx context.Context, loc string) ([]byte, error) {
	l, err := ParseLocation(loc)
	if err != nil {
		return nil, err
	}

	if !l.IsS3() {
		data, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read file")
		}
		return data, nil
	}

	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("s3_download_start", "bucket", l.Bucket, "s3_key", l.Key)
	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.Bucket),
		Key:    aws.String(l.Key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", l.Key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download object")
	}
	slog.Info("s3_download_complete", "s3_key", l.Key, "size", len(data))
	return data, nil
}

// WriteAll stores data at loc, replacing any previous contents.
func (s *Store) WriteAll(ctx context.Context, loc string, data []byte) error {
	l, err := ParseLocation(loc)
	if err != nil {
		return err
	}

	if !l.IsS3() {
		if err := os.WriteFile(l.Path, data, 0o644); err != nil {
			return errors.Wrap(err, "failed to write file")
		}
		return nil
	}

	api, err := s.client(ctx)
	if err != nil {
		return err
	}

	slog.Info("s3_upload_start", "bucket", l.Bucket, "s3_key", l.Key, "size", len(data))
	_, err = api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(l.Bucket),
		Key:           aws.String(l.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", l.Key, "error", err)
		return errors.Wrap(err, "failed to put object to S3")
	}
	return nil
}

func (s *Store) client(ctx context.Context) (ObjectAPI, error) {
	if s.api != nil {
		return s.api, nil
	}

	var optFns []func(*config.LoadOptions) error
	if s.opts.Region != "" {
		optFns = append(optFns, config.WithRegion(s.opts.Region))
	}
	if s.opts.Anonymous {
		optFns = append(optFns, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s.api = s3.NewFromConfig(cfg)
	slog.Info("s3_client_created", "region", cfg.Region)
	return s.api, nil
}
