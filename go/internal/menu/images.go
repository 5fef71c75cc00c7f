package menu

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MaxImageSize bounds direct uploads
const MaxImageSize = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageStoreConfig points at any S3-compatible bucket (AWS, MinIO, Supabase storage)
type ImageStoreConfig struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

// Enabled reports whether a bucket is configured
func (c ImageStoreConfig) Enabled() bool {
	return c.Bucket != ""
}

type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type PutPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ImageStore keeps product images under products/<product id>/
type ImageStore struct {
	objects   ObjectPutter
	presigner PutPresigner
	cfg       ImageStoreConfig
	clock     clockwork.Clock
	newKey    func() string
}

// loadDefaultAWSConfig is a seam for tests
var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewS3ImageStore builds a store backed by the S3 API
func NewS3ImageStore(ctx context.Context, cfg ImageStoreConfig) (*ImageStore, error) {
	if !cfg.Enabled() {
		return nil, ErrStorageDisabled
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("image storage configured")
	return NewImageStore(client, s3.NewPresignClient(client), cfg, nil), nil
}

func NewImageStore(objects ObjectPutter, presigner PutPresigner, cfg ImageStoreConfig, clock clockwork.Clock) *ImageStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	return &ImageStore{
		objects:   objects,
		presigner: presigner,
		cfg:       cfg,
		clock:     clock,
		newKey:    uuid.NewString,
	}
}

func (s *ImageStore) objectKey(productID, contentType string) (string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImageType, contentType)
	}
	productID = strings.TrimSpace(productID)
	if productID == "" || strings.ContainsAny(productID, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidProductID, productID)
	}
	return path.Join("products", productID, s.newKey()+ext), nil
}

// PublicURL is where an uploaded key is served from
func (s *ImageStore) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		u, err := url.Parse(s.cfg.Endpoint)
		if err == nil {
			u.Path = path.Join(u.Path, s.cfg.Bucket, key)
			return u.String()
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// Upload stores an image and returns its public URL
func (s *ImageStore) Upload(ctx context.Context, productID, contentType string, body io.Reader, size int64) (string, error) {
	if size > MaxImageSize {
		return "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, size)
	}
	key, err := s.objectKey(productID, contentType)
	if err != nil {
		return "", err
	}

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	log.Info().Str("key", key).Int64("size", size).Msg("product image uploaded")
	return s.PublicURL(key), nil
}

// PresignUpload returns a URL the admin client can PUT the image to directly
func (s *ImageStore) PresignUpload(ctx context.Context, productID, contentType string) (*PresignedUpload, error) {
	key, err := s.objectKey(productID, contentType)
	if err != nil {
		return nil, err
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign put %s: %w", key, err)
	}

	return &PresignedUpload{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   req.SignedHeader,
		Key:       key,
		PublicURL: s.PublicURL(key),
		ExpiresAt: s.clock.Now().Add(s.cfg.PresignTTL).UTC(),
	}, nil
}
