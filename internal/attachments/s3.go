package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"

	"github.com/ammar1510/tutorchat/internal/apperr"
	"github.com/ammar1510/tutorchat/internal/logger"
)

var log = logger.New("attachments")

// uploader is the subset of manager.Uploader used here
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Options struct {
	Bucket string
	Region string
	// PublicBaseURL replaces the virtual-hosted bucket URL, e.g. a CDN in
	// front of the bucket
	PublicBaseURL string
	// MaxFailures consecutive upload failures open the breaker
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// S3Store uploads attachments to a bucket and returns public object URLs
type S3Store struct {
	uploader uploader
	bucket   string
	baseURL  string
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newS3Store(manager.NewUploader(s3.NewFromConfig(cfg)), opts), nil
}

func newS3Store(up uploader, opts S3Options) *S3Store {
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	st := gobreaker.Settings{
		Name:        "s3-attachments",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &S3Store{
		uploader: up,
		bucket:   opts.Bucket,
		baseURL:  baseURL,
		breaker:  gobreaker.NewCircuitBreaker(st),
		now:      time.Now,
	}
}

func (s *S3Store) Store(ctx context.Context, data []byte, contentTypeHint, name string) (string, error) {
	key := ObjectKey(name, s.now())
	contentType := ContentType(data, contentTypeHint)

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperr.Upload("File storage is temporarily unavailable", err)
		}
		log.Error("Failed to upload %s to bucket %s: %v", key, s.bucket, err)
		return "", apperr.Upload("Failed to upload file", err)
	}

	log.Debug("Uploaded %s (%s, %d bytes)", key, contentType, len(data))
	return s.baseURL + "/" + key, nil
}
