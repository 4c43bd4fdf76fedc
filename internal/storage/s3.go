package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultPresignTTL = 15 * time.Minute

type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. a MinIO server. Path style
	// addressing is used when it is set.
	Endpoint  string
	AccessKey string
	SecretKey string
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type objectUploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 stores files as objects in one bucket. Uploads are streamed in parts, so
// the whole file is never held in memory. Reads are redirected to short lived
// presigned URLs.
type S3 struct {
	bucket     string
	deleter    objectDeleter
	uploader   objectUploader
	presigner  objectPresigner
	presignTTL time.Duration
}

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		bucket:     opts.Bucket,
		deleter:    client,
		uploader:   manager.NewUploader(client),
		presigner:  s3.NewPresignClient(client),
		presignTTL: defaultPresignTTL,
	}, nil
}

func (s *S3) Save(ctx context.Context, key, contentType string, r io.Reader) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, ok := ImageContentType(path.Ext(k)); !ok {
		in.ContentDisposition = aws.String("attachment")
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

func (s *S3) Remove(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// ServeHTTP redirects to a presigned GET URL for the object named by the
// request path. Mount it behind http.StripPrefix.
func (s *S3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	k, err := cleanKey(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	req, err := s.presigner.PresignGetObject(r.Context(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, req.URL, http.StatusFound)
}
