package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
)

// DefaultPartSize is the multipart chunk of an export upload. Batches of
// smaller exports go out as a single PutObject.
const DefaultPartSize = 10 * 1024 * 1024

// objectAPI is the part of the S3 API used for exports. *s3.Client
// implements it.
type objectAPI interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Provider stores exports as objects of one bucket.
type S3Provider struct {
	client   objectAPI
	bucket   string
	partSize int64
}

// NewS3Client builds a client from the region and an optional custom
// endpoint (MinIO and friends). Credentials are read from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func NewS3Client(region, endpoint string, pathStyle bool) *s3.Client {
	opts := s3.Options{
		Region:       region,
		UsePathStyle: pathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	return s3.New(opts)
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return creds, nil
}

func NewS3Provider(client objectAPI, bucket string) *S3Provider {
	return &S3Provider{
		client:   client,
		bucket:   bucket,
		partSize: DefaultPartSize,
	}
}

// contentTypes maps export file extensions to media types.
var contentTypes = map[string]string{
	".csv":   "text/csv",
	".jsonl": "application/x-ndjson",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pdf":   "application/pdf",
	".arrow": "application/vnd.apache.arrow.file",
}

// putInput describes the object for key. A trailing .gz marks a compressed
// export of the format named by the extension before it.
func (p *S3Provider) putInput(key string, body io.Reader) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	name := key
	if strings.HasSuffix(name, ".gz") {
		name = strings.TrimSuffix(name, ".gz")
		in.ContentEncoding = aws.String("gzip")
	}
	if ct, ok := contentTypes[path.Ext(name)]; ok {
		in.ContentType = aws.String(ct)
	} else {
		in.ContentType = aws.String("application/octet-stream")
	}
	return in
}

// StreamToFile uploads the bytes written to the returned writer as the object
// key. The upload runs until the writer is closed, its outcome is sent on the
// channel.
func (p *S3Provider) StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)

	uploader := manager.NewUploader(p.client, func(u *manager.Uploader) {
		u.PartSize = p.partSize
		// Parts come from a single pipe, more workers only buffer more.
		u.Concurrency = 2
	})
	in := p.putInput(key, pr)

	go func() {
		defer close(done)
		slog.Debug("export upload started", "bucket", p.bucket, "key", key, "content_type", aws.ToString(in.ContentType))

		out, err := uploader.Upload(ctx, in)
		// A failed upload stops reading, the encoder must see that.
		_ = pr.CloseWithError(err)
		if err != nil {
			slog.Error("export upload failed", "bucket", p.bucket, "key", key, "error", err)
			done <- errors.Wrapf(err, "uploading s3://%s/%s", p.bucket, key)
			return
		}
		slog.Info("export uploaded", "bucket", p.bucket, "key", key, "parts", len(out.CompletedParts))
		done <- nil
	}()

	return pw, done
}

func (p *S3Provider) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening s3://%s/%s", p.bucket, key)
	}
	return out.Body, nil
}

func (p *S3Provider) GetDownloadURL(key string) string {
	return "s3://" + p.bucket + "/" + key
}
