package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pgbackup/internal/config"
	"pgbackup/internal/logger"
	"pgbackup/internal/pgerr"
)

// S3 is the S3-compatible Storage Backend. Generalized from the teacher's
// internal/cloud/s3.go, whose Upload/Download only move whole local files,
// into a true streaming backend: Writer feeds an io.Pipe into
// manager.Uploader (which multiparts automatically once the stream
// crosses its part-size threshold), and Reader returns GetObject's body
// directly, which is already a streaming io.ReadCloser.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	log    logger.Logger
}

// NewS3 builds an S3 backend from cfg, resolving credentials in the order
// spec'd in SPEC_FULL.md: explicit StorageConfig fields, then environment
// variables, then the AWS SDK's ambient credential chain (instance role,
// shared config file, etc.) — the same precedence the teacher's
// cloud.Config implies by falling back to the SDK's default provider.
func NewS3(cfg *config.StorageConfig, log logger.Logger) (*S3, error) {
	ctx := context.Background()

	region := cfg.RegionFromEnv()
	endpoint := cfg.EndpointFromEnv()

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if ak := cfg.AccessKeyFromEnv(); ak != "" {
		sk := cfg.SecretKeyFromEnv()
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3{client: client, bucket: cfg.BucketFromEnv(), prefix: cfg.Prefix, log: log}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// s3WriteCloser streams writes into an io.Pipe consumed by a background
// manager.Uploader goroutine. Closing it signals EOF to the uploader and
// blocks until the upload (or its abort) completes.
type s3WriteCloser struct {
	pw     *io.PipeWriter
	done   chan error
	cancel context.CancelFunc
}

func (w *s3WriteCloser) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *s3WriteCloser) Close() error {
	closeErr := w.pw.Close()
	uploadErr := <-w.done
	w.cancel()
	if uploadErr != nil {
		return pgerr.Storage(pgerr.StorageTransient, uploadErr)
	}
	return closeErr
}

func (s *S3) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	uploadCtx, cancel := context.WithCancel(ctx)

	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024 // 8MiB, spec's multipart threshold floor
		u.Concurrency = 4
	})

	done := make(chan error, 1)
	go func() {
		_, err := uploader.Upload(uploadCtx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    awsString(s.fullKey(key)),
			Body:   pr,
		})
		if err != nil {
			// manager.Uploader aborts its own multipart upload when
			// Upload fails; this code makes no abort call. The failure
			// is logged here and returned to the caller by Close.
			pr.CloseWithError(err)
			if s.log != nil {
				s.log.Warn("storage: s3 upload failed, multipart parts best-effort aborted by the SDK", "key", key, "error", err)
			}
		}
		done <- err
	}()

	return &s3WriteCloser{pw: pw, done: done, cancel: cancel}, nil
}

func (s *S3) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    awsString(s.fullKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, pgerr.Storage(pgerr.StorageNotFound, err)
		}
		return nil, pgerr.Storage(pgerr.StorageTransient, err)
	}
	return out.Body, nil
}

func (s *S3) List(ctx context.Context, prefix string, limit int) ([]Artifact, error) {
	var artifacts []Artifact
	fullPrefix := s.fullKey(prefix)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &fullPrefix,
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pgerr.Storage(pgerr.StorageTransient, err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(*obj.Key, s.prefixWithSlash())
			artifacts = append(artifacts, Artifact{
				Key:          key,
				SizeBytes:    derefInt64(obj.Size),
				LastModified: derefTime(obj.LastModified),
			})
		}
		if limit > 0 && len(artifacts) >= limit {
			break
		}
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Key < artifacts[j].Key })
	if limit > 0 && len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}
	return artifacts, nil
}

func (s *S3) prefixWithSlash() string {
	if s.prefix == "" {
		return ""
	}
	return strings.TrimSuffix(s.prefix, "/") + "/"
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    awsString(s.fullKey(key)),
	})
	if err != nil {
		return pgerr.Storage(pgerr.StorageTransient, err)
	}
	return nil
}

func (s *S3) Stat(ctx context.Context, key string) (Artifact, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    awsString(s.fullKey(key)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return Artifact{}, pgerr.Storage(pgerr.StorageNotFound, err)
		}
		return Artifact{}, pgerr.Storage(pgerr.StorageTransient, err)
	}
	return Artifact{
		Key:          key,
		SizeBytes:    derefInt64(out.ContentLength),
		LastModified: derefTime(out.LastModified),
	}, nil
}

func (s *S3) Test(ctx context.Context) error {
	probeKey := ".pgbackup-test-connection"
	w, err := s.Writer(ctx, probeKey)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		return pgerr.Storage(pgerr.StorageForbidden, err)
	}
	if err := w.Close(); err != nil {
		return err
	}
	return s.Delete(ctx, probeKey)
}

func awsString(s string) *string { return &s }

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
