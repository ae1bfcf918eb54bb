package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options locate the destination object. Endpoint and the static keys are
// for S3-compatible stores (MinIO, R2); leave them empty for AWS with the
// default credential chain.
type S3Options struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Uploader is the subset of manager.Uploader used here.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// NewS3Uploader builds a multipart uploader from opts.
func NewS3Uploader(ctx context.Context, opts S3Options) (*manager.Uploader, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return manager.NewUploader(client), nil
}

// ExportToS3 streams the export straight into an S3 object without buffering
// the whole file.
func ExportToS3(ctx context.Context, svc Lister, opts Options, up Uploader, dst S3Options) (int, error) {
	if dst.Bucket == "" || dst.Key == "" {
		return 0, fmt.Errorf("s3 bucket and key are required")
	}

	pr, pw := io.Pipe()
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := Export(ctx, svc, opts, pw)
		pw.CloseWithError(err)
		done <- result{n, err}
	}()

	_, upErr := up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(dst.Bucket),
		Key:         aws.String(dst.Key),
		Body:        pr,
		ContentType: aws.String("application/x-ndjson"),
	})
	// Unblock the writer if the upload stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	res := <-done

	// A closed pipe on the export side only means the upload gave up first.
	if res.err != nil && !errors.Is(res.err, io.ErrClosedPipe) {
		return res.n, res.err
	}
	if upErr != nil {
		return res.n, fmt.Errorf("upload s3://%s/%s: %w", dst.Bucket, dst.Key, upErr)
	}
	if res.err != nil {
		return res.n, res.err
	}
	slog.Info("export uploaded", "bucket", dst.Bucket, "key", dst.Key, "records", res.n)
	return res.n, nil
}
