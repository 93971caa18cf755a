package photos

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/store"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store uploads photos to a bucket and serves them through presigned GET
// links. The item row keeps only the object key.
type S3Store struct {
	db        *sql.DB
	bucket    string
	expires   time.Duration
	putter    objectPutter
	presigner getPresigner
}

// NewS3Store connects to the configured bucket. Static credentials are used
// when set; otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, db *sql.DB, cfg config.S3) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		db:        db,
		bucket:    cfg.Bucket,
		expires:   time.Duration(cfg.PresignMinutes) * time.Minute,
		putter:    client,
		presigner: s3.NewPresignClient(client),
	}, nil
}

func objectKey(itemID string) string {
	return "items/" + itemID + ".jpg"
}

func thumbKey(key string) string {
	return strings.TrimSuffix(key, ".jpg") + "_thumb.jpg"
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, itemID string, photo *imaging.Photo) error {
	key := objectKey(itemID)
	objects := []struct {
		key  string
		data []byte
	}{
		{key, photo.Full},
		{thumbKey(key), photo.Thumb},
	}
	for _, obj := range objects {
		_, err := s.putter.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(obj.key),
			Body:        bytes.NewReader(obj.data),
			ContentType: aws.String(photo.MIME),
		})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", obj.key, err)
		}
	}
	return store.SetItemImageKey(ctx, s.db, itemID, key, photo.MIME)
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context, itemID string, thumbnail bool) (*Image, error) {
	key, err := store.GetItemImageKey(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, nil
	}
	if thumbnail {
		key = thumbKey(key)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return nil, fmt.Errorf("presigning %s: %w", key, err)
	}
	return &Image{URL: req.URL}, nil
}
