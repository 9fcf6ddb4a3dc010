package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

const (
	DataFile = "data.json"
	RSSFile  = "rss.xml"

	jsonContentType = "application/json; charset=utf-8"
	rssContentType  = "application/rss+xml; charset=utf-8"
)

// Render returns the data.json and rss.xml payloads of doc.
func Render(doc *models.SiteDocument) (data, rss []byte, err error) {
	data, err = json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode document: %w", err)
	}
	rss, err = RenderRSS(doc)
	if err != nil {
		return nil, nil, err
	}
	return data, rss, nil
}

// DirSink writes {dir}/{id}/data.json and {dir}/{id}/rss.xml.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

func (s *DirSink) Write(_ context.Context, id string, doc *models.SiteDocument) error {
	data, rss, err := Render(doc)
	if err != nil {
		return err
	}

	siteDir := filepath.Join(s.dir, id)
	if err := os.MkdirAll(siteDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(siteDir, DataFile), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", DataFile, err)
	}
	if err := os.WriteFile(filepath.Join(siteDir, RSSFile), rss, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", RSSFile, err)
	}
	return nil
}

// ReadDocument loads the data.json written by a DirSink.
func ReadDocument(dir, id string) (*models.SiteDocument, error) {
	raw, err := os.ReadFile(filepath.Join(dir, id, DataFile))
	if err != nil {
		return nil, err
	}
	var doc models.SiteDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DataFile, err)
	}
	return &doc, nil
}

// ObjectPutter is the subset of the S3 client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds optional overrides for the default AWS configuration chain.
type S3Config struct {
	Region       string
	Profile      string
	UsePathStyle bool
}

// NewS3Client builds an S3 client from the default AWS configuration chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3Sink mirrors outputs to {prefix}/{id}/data.json and rss.xml in a bucket.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3Sink(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Sink) Write(ctx context.Context, id string, doc *models.SiteDocument) error {
	data, rss, err := Render(doc)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.Key(id, DataFile), bytes.NewReader(data), jsonContentType); err != nil {
		return err
	}
	return s.put(ctx, s.Key(id, RSSFile), bytes.NewReader(rss), rssContentType)
}

// Key returns the object key of file for plugin id.
func (s *S3Sink) Key(id, file string) string {
	return path.Join(s.prefix, id, file)
}

func (s *S3Sink) put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
