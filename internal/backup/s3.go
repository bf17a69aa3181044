package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/saving"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config describes the bucket the mirror uploads to. Endpoint may point
// to any S3 compatible service such as MinIO.
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Bucket    string
	Prefix    string
}

// ObjectPutter is the subset of *s3.Client used by S3Mirror.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client with static credentials.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// S3Mirror uploads a fresh copy of one database after each successful
// save. It is a saving.Observer; uploads run in the background and never
// delay other observers.
type S3Mirror struct {
	saving.NopObserver

	putter  ObjectPutter
	bucket  string
	prefix  string
	src     Source
	tempDir string
	logger  logging.Logger
	now     func() time.Time

	wg sync.WaitGroup
	mu sync.Mutex
	// last holds the result of the most recent upload.
	lastKey string
	lastErr error
}

// NewS3Mirror returns a mirror for src. Temporary copies are written to
// tempDir (os.TempDir when empty).
func NewS3Mirror(putter ObjectPutter, c S3Config, src Source, tempDir string, logger logging.Logger) *S3Mirror {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &S3Mirror{
		putter:  putter,
		bucket:  c.Bucket,
		prefix:  c.Prefix,
		src:     src,
		tempDir: tempDir,
		logger:  logger.With("module", "s3mirror"),
		now:     time.Now,
	}
}

// DidSaveDatabase starts an upload when ref is the mirrored database.
func (m *S3Mirror) DidSaveDatabase(ref models.URLReference) {
	if ref != m.src.Ref() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := context.Background()
		key, err := m.Upload(ctx)
		m.mu.Lock()
		m.lastKey, m.lastErr = key, err
		m.mu.Unlock()
		if err != nil {
			m.logger.Error(ctx, "mirror upload failed", "target", ref.Location, "err", err)
			return
		}
		m.logger.Info(ctx, "mirror upload finished", "target", ref.Location, "key", key)
	}()
}

// Upload copies the database and puts it into the bucket. It returns the
// object key.
func (m *S3Mirror) Upload(ctx context.Context) (string, error) {
	tmp := filepath.Join(m.tempDir, "gophvault-"+uuid.NewString()+".db")
	defer os.Remove(tmp)
	if err := m.src.Backup(ctx, tmp); err != nil {
		return "", err
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return "", err
	}

	key := path.Join(m.prefix, baseName(m.src.Ref()), m.now().UTC().Format(stampLayout)+".db")
	_, err = m.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.sqlite3"),
		Metadata:    map[string]string{"blake3": cryptox.Digest(data)},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// Wait blocks until background uploads finish.
func (m *S3Mirror) Wait() {
	m.wg.Wait()
}

// Last returns the key and error of the most recent background upload.
func (m *S3Mirror) Last() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastKey, m.lastErr
}
