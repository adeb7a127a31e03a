// Package stream opens record inputs and outputs by location. A location is
// "-" for stdin/stdout, a local path, s3://bucket/key or gs://bucket/object.
// Compression is chosen by the file suffix (see package compression).
package stream

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/avrostream/pkg/compression"
	"github.com/ajitpratap0/avrostream/pkg/errors"
)

// Scheme identifies where a location lives.
type Scheme string

const (
	SchemeStdio Scheme = "stdio"
	SchemeFile  Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
)

// Location is a parsed input or output address.
type Location struct {
	Scheme Scheme
	Bucket string
	// Key is the object key for s3/gs and the path for files.
	Key string
}

// ParseLocation parses uri.
func ParseLocation(uri string) (Location, error) {
	switch {
	case uri == "":
		return Location{}, errors.New(errors.ErrorTypeInvalidArgument, "empty location")
	case uri == "-":
		return Location{Scheme: SchemeStdio}, nil
	case strings.HasPrefix(uri, "s3://"):
		return bucketLocation(SchemeS3, uri, strings.TrimPrefix(uri, "s3://"))
	case strings.HasPrefix(uri, "gs://"):
		return bucketLocation(SchemeGCS, uri, strings.TrimPrefix(uri, "gs://"))
	case strings.HasPrefix(uri, "file://"):
		return Location{Scheme: SchemeFile, Key: strings.TrimPrefix(uri, "file://")}, nil
	default:
		return Location{Scheme: SchemeFile, Key: uri}, nil
	}
}

func bucketLocation(s Scheme, uri, rest string) (Location, error) {
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, errors.New(errors.ErrorTypeInvalidArgument, "location needs a bucket and a key").
			WithDetail("location", uri)
	}
	return Location{Scheme: s, Bucket: bucket, Key: key}, nil
}

// S3Client is the part of the S3 API used to read and upload objects.
type S3Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config configures an Opener.
type Config struct {
	// Region and Endpoint configure the S3 client; empty means the SDK
	// defaults. A custom endpoint switches to path-style addressing.
	Region   string
	Endpoint string
	// CredentialsFile is a GCS service account file.
	CredentialsFile string
	// Level is the compression level of compressed outputs.
	Level  compression.Level
	Logger *zap.Logger

	// S3 replaces the client built from the AWS default config.
	S3 S3Client

	Stdin  io.Reader
	Stdout io.Writer
}

// Opener opens locations. Cloud clients are created on first use.
type Opener struct {
	cfg Config

	mu  sync.Mutex
	s3  S3Client
	gcs *storage.Client
}

// NewOpener returns an Opener for cfg.
func NewOpener(cfg Config) *Opener {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Level == 0 {
		cfg.Level = compression.Default
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	return &Opener{cfg: cfg, s3: cfg.S3}
}

// Open returns the decompressed content of uri.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}

	var raw io.ReadCloser
	switch loc.Scheme {
	case SchemeStdio:
		raw = io.NopCloser(o.cfg.Stdin)
	case SchemeFile:
		f, err := os.Open(loc.Key)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open input").
				WithDetail("location", uri)
		}
		raw = f
	case SchemeS3:
		client, err := o.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to get S3 object").
				WithDetail("location", uri)
		}
		raw = out.Body
	case SchemeGCS:
		client, err := o.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read GCS object").
				WithDetail("location", uri)
		}
		raw = r
	}

	alg, _ := compression.ByExtension(loc.Key)
	dec, err := compression.NewReader(raw, alg)
	if err != nil {
		raw.Close()
		return nil, err
	}
	o.cfg.Logger.Debug("opened input",
		zap.String("location", uri),
		zap.String("compression", string(alg)))
	return &readCloser{Reader: dec, closers: []io.Closer{dec, raw}}, nil
}

// Output is a location being written. Close publishes the content; Abort
// discards whatever was written so no partial object is left behind.
type Output interface {
	io.WriteCloser
	// Abort stops the write without publishing. Bytes already sent to
	// stdout cannot be taken back. Abort after Close is a no-op.
	Abort(cause error) error
}

// Create returns a writer whose content lands at uri, compressed by its
// suffix. The content is complete only once Close returns nil.
func (o *Opener) Create(ctx context.Context, uri string) (Output, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}

	var (
		raw   io.WriteCloser
		abort func(cause error) error
	)
	switch loc.Scheme {
	case SchemeStdio:
		raw = nopWriteCloser{o.cfg.Stdout}
		abort = func(error) error { return nil }
	case SchemeFile:
		f, err := os.Create(loc.Key)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output").
				WithDetail("location", uri)
		}
		raw = f
		abort = func(error) error {
			f.Close()
			if err := os.Remove(loc.Key); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove partial output").
					WithDetail("location", uri)
			}
			return nil
		}
	case SchemeS3:
		client, err := o.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		u := newUpload(ctx, client, loc)
		raw, abort = u, u.abort
	case SchemeGCS:
		client, err := o.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		// a GCS object is only committed by Close on a live context
		wctx, cancel := context.WithCancel(ctx)
		gw := client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(wctx)
		raw = &gcsWriter{Writer: gw, cancel: cancel}
		abort = func(error) error {
			cancel()
			gw.Close()
			return nil
		}
	}

	sw := &switchWriter{w: raw}
	alg, _ := compression.ByExtension(loc.Key)
	enc, err := compression.NewWriter(sw, &compression.Config{Algorithm: alg, Level: o.cfg.Level})
	if err != nil {
		abort(err)
		return nil, err
	}
	return &writeCloser{Writer: enc, enc: enc, raw: raw, sink: sw, abort: abort, logger: o.cfg.Logger, uri: uri}, nil
}

// Close releases the cloud clients.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs != nil {
		err := o.gcs.Close()
		o.gcs = nil
		return err
	}
	return nil
}

func (o *Opener) s3Client(ctx context.Context) (S3Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.s3 != nil {
		return o.s3, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if o.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(o.cfg.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	o.s3 = s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.cfg.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.cfg.Endpoint)
			so.UsePathStyle = true
		}
	})
	return o.s3, nil
}

func (o *Opener) gcsClient(ctx context.Context) (*storage.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs != nil {
		return o.gcs, nil
	}

	var opts []option.ClientOption
	if o.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	o.gcs = client
	return client, nil
}

// upload streams writes into an S3 multipart upload.
type upload struct {
	pw *io.PipeWriter
	g  *errgroup.Group
}

func newUpload(ctx context.Context, client S3Client, loc Location) *upload {
	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := manager.NewUploader(client).Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
			Body:   pr,
		})
		// unblock the writer when the upload stops early
		pr.CloseWithError(err)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to upload S3 object").
				WithDetail("bucket", loc.Bucket).
				WithDetail("key", loc.Key)
		}
		return nil
	})
	return &upload{pw: pw, g: g}
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

func (u *upload) Close() error {
	u.pw.Close()
	return u.g.Wait()
}

// abort fails the upload body so the uploader gives up, aborting any
// multipart upload it started.
func (u *upload) abort(cause error) error {
	u.pw.CloseWithError(cause)
	_ = u.g.Wait()
	return nil
}

type gcsWriter struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (g *gcsWriter) Close() error {
	defer g.cancel()
	return g.Writer.Close()
}

// switchWriter lets an aborted output drain its encoder into io.Discard.
type switchWriter struct {
	w io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) { return s.w.Write(p) }

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var errAborted = errors.New(errors.ErrorTypeProcessing, "output aborted")

type writeCloser struct {
	io.Writer
	enc    io.Closer
	raw    io.Closer
	sink   *switchWriter
	abort  func(cause error) error
	logger *zap.Logger
	uri    string
	closed bool
}

func (w *writeCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var first error
	for _, c := range []io.Closer{w.enc, w.raw} {
		if err := c.Close(); err != nil && first == nil {
			first = errors.Wrap(err, errors.ErrorTypeFile, "failed to finish output")
		}
	}
	return first
}

func (w *writeCloser) Abort(cause error) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if cause == nil {
		cause = errAborted
	}
	// release the encoder; its trailer goes nowhere
	w.sink.w = io.Discard
	_ = w.enc.Close()
	w.logger.Debug("aborted output", zap.String("location", w.uri), zap.Error(cause))
	return w.abort(cause)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
