package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/objectkey"
)

// Config options for the S3 thumbnail store
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// PublicBaseURL overrides the URL prefix returned for uploaded objects
	PublicBaseURL string

	// KeyPrefix places every object under a fixed prefix
	KeyPrefix string
}

// Backend uploads thumbnails to an S3-compatible bucket
type Backend struct {
	client    *s3.Client
	uploader  *manager.Uploader
	generator objectkey.Generator
	config    Config
}

// New creates a new S3-compatible thumbnail store
func New(config Config) (simplesubmit.ThumbnailStore, error) {
	backend, err := NewWithGenerator(config, nil)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// NewWithGenerator creates a store using a custom object key generator
func NewWithGenerator(config Config, generator objectkey.Generator) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	if generator == nil {
		if config.KeyPrefix != "" {
			generator = objectkey.NewPrefixedGenerator(config.KeyPrefix)
		} else {
			generator = objectkey.NewRecommendedGenerator()
		}
	}

	// Set up AWS config
	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		// Use provided credentials
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// a failed upload is reported, never retried
		o.RetryMaxAttempts = 1
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		}
	})

	return &Backend{
		client:    client,
		uploader:  manager.NewUploader(client, func(u *manager.Uploader) { u.Concurrency = 1 }),
		generator: generator,
		config:    config,
	}, nil
}

// Upload stores the file under a generated key with a single PUT and returns its public URL
func (b *Backend) Upload(ctx context.Context, file simplesubmit.File, progress simplesubmit.ProgressFunc) (string, error) {
	key := b.generator.GenerateKey(file.Name)

	var body io.Reader = file.Reader
	if progress != nil {
		body = &progressReader{reader: file.Reader, total: file.Size, callback: progress}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if file.ContentType != "" {
		input.ContentType = aws.String(file.ContentType)
	}

	_, err := b.uploader.Upload(ctx, input, func(u *manager.Uploader) {
		// keep the whole object in one part so the upload is one PutObject call
		if file.Size >= u.PartSize {
			u.PartSize = file.Size + 1
		}
	})
	if err != nil {
		return "", toUploadError(key, err)
	}

	if progress != nil {
		progress(1)
	}

	return b.PublicURL(key), nil
}

// PublicURL returns the URL an object is served from
func (b *Backend) PublicURL(key string) string {
	switch {
	case b.config.PublicBaseURL != "":
		return fmt.Sprintf("%s/%s", strings.TrimRight(b.config.PublicBaseURL, "/"), key)
	case b.config.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(b.config.Endpoint, "/"), b.config.Bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.config.Bucket, b.config.Region, key)
	}
}

// toUploadError extracts the HTTP status and service message from an SDK error
func toUploadError(key string, err error) error {
	uploadErr := &simplesubmit.UploadError{Key: key, Err: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		uploadErr.StatusCode = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		uploadErr.Message = apiErr.ErrorMessage()
		if uploadErr.Message == "" {
			uploadErr.Message = apiErr.ErrorCode()
		}
	}

	return uploadErr
}

// progressReader wraps an io.Reader to report the transferred fraction
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	total     int64
	callback  simplesubmit.ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 && pr.total > 0 {
		fraction := float64(pr.bytesRead) / float64(pr.total)
		if fraction > 1 {
			fraction = 1
		}
		pr.callback(fraction)
	}
	return n, err
}
