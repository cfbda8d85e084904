package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"efm-go/internal/efm"
)

const (
	defaultRegion   = "us-east-1"
	minPartSize     = 5 * 1024 * 1024
	maxUploadParts  = 10000
	defaultPartSize = 8 * 1024 * 1024
)

// s3API is the subset of *s3.Client used by S3Ops.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures S3Ops. Endpoint switches to path-style addressing for
// S3-compatible services.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Timeout         time.Duration // per request; zero disables
	PartSize        int64         // multipart threshold and chunk size
}

// S3Ops stores objects in an S3 bucket. Files larger than the part size are
// uploaded in parts, each part reported on the progress channel.
type S3Ops struct {
	client     s3API
	downloader *manager.Downloader
	bucket     string
	prefix     string
	timeout    time.Duration
	partSize   int64
	ids        efm.IDGenerator
}

var (
	_ efm.CloudOps   = (*S3Ops)(nil)
	_ efm.CloudMover = (*S3Ops)(nil)
)

// NewS3Ops creates S3 ops using static credentials when given, otherwise the
// default AWS credential chain.
func NewS3Ops(ctx context.Context, cfg S3Config, ids efm.IDGenerator) (*S3Ops, error) {
	if cfg.Bucket == "" {
		return nil, efm.NewSettingsError(efm.SettingS3Bucket + " is not set")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, efm.NewCloudSyncError("loading aws config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Ops(client, cfg, ids), nil
}

func newS3Ops(client s3API, cfg S3Config, ids efm.IDGenerator) *S3Ops {
	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = defaultPartSize
	}
	if partSize < minPartSize {
		partSize = minPartSize
	}
	return &S3Ops{
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = partSize
			// one writer keeps download progress events in order
			d.Concurrency = 1
		}),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		timeout:  cfg.Timeout,
		partSize: partSize,
		ids:      ids,
	}
}

func (o *S3Ops) key(key string) string {
	if o.prefix == "" {
		return key
	}
	return path.Join(o.prefix, key)
}

func (o *S3Ops) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// Upload stores localPath at key, using a multipart upload above the part size.
func (o *S3Ops) Upload(ctx context.Context, localPath, key string, progress chan<- efm.ProgressEvent) error {
	f, err := os.Open(localPath)
	if err != nil {
		return efm.NewCloudSyncError("opening "+localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return efm.NewCloudSyncError("reading size of "+localPath, err)
	}

	if info.Size() <= o.partSize {
		callCtx, cancel := o.callCtx(ctx)
		defer cancel()
		_, err := o.client.PutObject(callCtx, &s3.PutObjectInput{
			Bucket:        aws.String(o.bucket),
			Key:           aws.String(o.key(key)),
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
		})
		if err != nil {
			efm.Emit(ctx, progress, efm.PartUploadFailed{Key: key, Error: err.Error()})
			return efm.NewCloudSyncError("uploading "+key, err)
		}
		return efm.Emit(ctx, progress, efm.PartUploaded{Key: key, Part: 1})
	}

	return o.uploadMultipart(ctx, f, info.Size(), key, progress)
}

func (o *S3Ops) uploadMultipart(ctx context.Context, f *os.File, size int64, key string, progress chan<- efm.ProgressEvent) error {
	partSize := o.partSize
	if size/partSize >= maxUploadParts {
		partSize = size/maxUploadParts + 1
	}

	callCtx, cancel := o.callCtx(ctx)
	created, err := o.client.CreateMultipartUpload(callCtx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(key)),
	})
	cancel()
	if err != nil {
		return efm.NewCloudSyncError("starting multipart upload of "+key, err)
	}
	uploadID := created.UploadId

	abort := func(cause error) error {
		// the caller's context may already be cancelled
		abortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		o.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(o.bucket),
			Key:      aws.String(o.key(key)),
			UploadId: uploadID,
		})
		return cause
	}

	var parts []types.CompletedPart
	for offset, part := int64(0), int32(1); offset < size; offset, part = offset+partSize, part+1 {
		n := min(partSize, size-offset)

		callCtx, cancel := o.callCtx(ctx)
		out, err := o.client.UploadPart(callCtx, &s3.UploadPartInput{
			Bucket:        aws.String(o.bucket),
			Key:           aws.String(o.key(key)),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(part),
			Body:          io.NewSectionReader(f, offset, n),
			ContentLength: aws.Int64(n),
		})
		cancel()
		if err != nil {
			efm.Emit(ctx, progress, efm.PartUploadFailed{Key: key, Error: err.Error()})
			return abort(efm.NewCloudSyncError(fmt.Sprintf("uploading part %d of %s", part, key), err))
		}
		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(part)})

		if err := efm.Emit(ctx, progress, efm.PartUploaded{Key: key, Part: int(part)}); err != nil {
			return abort(err)
		}
	}

	callCtx, cancel = o.callCtx(ctx)
	defer cancel()
	_, err = o.client.CompleteMultipartUpload(callCtx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(o.bucket),
		Key:             aws.String(o.key(key)),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(efm.NewCloudSyncError("completing multipart upload of "+key, err))
	}
	return nil
}

// Delete removes key. S3 reports success for missing keys.
func (o *S3Ops) Delete(ctx context.Context, key string) error {
	callCtx, cancel := o.callCtx(ctx)
	defer cancel()
	_, err := o.client.DeleteObject(callCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(key)),
	})
	if err != nil {
		return efm.NewCloudSyncError("deleting "+key, err)
	}
	return nil
}

func (o *S3Ops) Exists(ctx context.Context, key string) (bool, error) {
	_, err := o.head(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, efm.NewCloudSyncError("checking "+key, err)
	}
	return true, nil
}

func (o *S3Ops) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	callCtx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.client.HeadObject(callCtx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(key)),
	})
}

// Download fetches key into destPath through a temp file in the destination directory.
func (o *S3Ops) Download(ctx context.Context, key, destPath string, progress chan<- efm.ProgressEvent) error {
	head, err := o.head(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return efm.NewDownloadError("object not found: "+key, err)
		}
		return efm.NewDownloadError("checking "+key, err)
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return efm.NewDownloadError("creating directory for "+destPath, err)
	}
	tmpPath := filepath.Join(dir, ".tmp-"+o.ids.New())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return efm.NewDownloadError("creating temp file", err)
	}
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	w := &progressWriterAt{
		ctx:      ctx,
		w:        tmp,
		key:      key,
		total:    aws.ToInt64(head.ContentLength),
		progress: progress,
	}

	callCtx, cancel := o.callCtx(ctx)
	defer cancel()
	if _, err := o.downloader.Download(callCtx, w, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key(key)),
	}); err != nil {
		tmp.Close()
		return efm.NewDownloadError("downloading "+key, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return efm.NewDownloadError("syncing "+tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return efm.NewDownloadError("closing "+tmpPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return efm.NewDownloadError("renaming into "+destPath, err)
	}
	success = true
	return nil
}

// TestConnection checks that the bucket is reachable with the configured credentials.
func (o *S3Ops) TestConnection(ctx context.Context) error {
	callCtx, cancel := o.callCtx(ctx)
	defer cancel()
	if _, err := o.client.HeadBucket(callCtx, &s3.HeadBucketInput{Bucket: aws.String(o.bucket)}); err != nil {
		return efm.NewCloudSyncError("connecting to bucket "+o.bucket, err)
	}
	return nil
}

// Move copies fromKey to toKey server-side and deletes the source. Moving is
// a no-op when the source is gone and the target exists.
func (o *S3Ops) Move(ctx context.Context, fromKey, toKey string) error {
	callCtx, cancel := o.callCtx(ctx)
	defer cancel()
	_, err := o.client.CopyObject(callCtx, &s3.CopyObjectInput{
		Bucket:     aws.String(o.bucket),
		CopySource: aws.String(path.Join(o.bucket, o.key(fromKey))),
		Key:        aws.String(o.key(toKey)),
	})
	if err != nil {
		if isNotFound(err) {
			if ok, existsErr := o.Exists(ctx, toKey); existsErr == nil && ok {
				return nil
			}
		}
		return efm.NewCloudSyncError(fmt.Sprintf("copying %s to %s", fromKey, toKey), err)
	}
	return o.Delete(ctx, fromKey)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// progressWriterAt reports FileDownloadProgress after every write.
type progressWriterAt struct {
	ctx      context.Context
	w        io.WriterAt
	key      string
	total    int64
	progress chan<- efm.ProgressEvent

	mu      sync.Mutex
	written int64
}

func (p *progressWriterAt) WriteAt(b []byte, off int64) (int, error) {
	n, err := p.w.WriteAt(b, off)
	if err != nil {
		return n, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.written += int64(n)
	if err := efm.Emit(p.ctx, p.progress, efm.FileDownloadProgress{
		Key:          p.key,
		BytesWritten: p.written,
		TotalBytes:   p.total,
	}); err != nil {
		return n, err
	}
	return n, nil
}
