package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/config"
)

// timestampLayout names snapshot folders so they sort chronologically.
const timestampLayout = "20060102T150405Z"

// ObjectStore is the subset of the S3 API the Shipper uses.
type ObjectStore interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ ObjectStore = (*s3.Client)(nil)

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// an access key is configured, otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Shipper copies snapshot directories to and from a bucket. Each upload goes
// under <prefix>/<timestamp>/.
type Shipper struct {
	client ObjectStore
	bucket string
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// NewShipper creates a Shipper for the bucket and prefix of cfg.
func NewShipper(client ObjectStore, cfg config.S3Config, logger zerolog.Logger) *Shipper {
	return &Shipper{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.With().Str("component", "shipper").Logger(),
		now:    time.Now,
	}
}

func (s *Shipper) key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// Upload puts every regular file of dir under a new timestamped folder and
// returns the folder key.
func (s *Shipper) Upload(ctx context.Context, dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	folder := s.key(s.now().UTC().Format(timestampLayout))
	uploaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		key := path.Join(folder, entry.Name())
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType(entry.Name())),
		})
		if err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded++
	}

	s.logger.Info().
		Str("bucket", s.bucket).
		Str("folder", folder).
		Int("files", uploaded).
		Msg("snapshot uploaded")
	return folder, nil
}

// DownloadLatest writes the files of the most recent uploaded snapshot into
// dir and returns its folder key.
func (s *Shipper) DownloadLatest(ctx context.Context, dir string) (string, error) {
	folders, err := s.listFolders(ctx)
	if err != nil {
		return "", err
	}
	if len(folders) == 0 {
		return "", fmt.Errorf("no snapshot found in s3://%s/%s", s.bucket, s.prefix)
	}
	sort.Strings(folders)
	folder := strings.TrimSuffix(folders[len(folders)-1], "/")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	keys, err := s.listKeys(ctx, folder+"/")
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		if err := s.download(ctx, key, filepath.Join(dir, path.Base(key))); err != nil {
			return "", err
		}
	}

	s.logger.Info().
		Str("bucket", s.bucket).
		Str("folder", folder).
		Int("files", len(keys)).
		Msg("snapshot downloaded")
	return folder, nil
}

func (s *Shipper) listFolders(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}

	var folders []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			folders = append(folders, aws.ToString(cp.Prefix))
		}
	}
	return folders, nil
}

func (s *Shipper) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *Shipper) download(ctx context.Context, key, dest string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	return writeFileAtomic(dest, data)
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".yaml":
		return "application/yaml"
	}
	return "application/octet-stream"
}
