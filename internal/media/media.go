// media — загрузка фотографий рецептов в S3-совместимое хранилище (MinIO).
//
// Фото с камеры уходят на распознавание в API, а оригиналы сохраняются
// в бакет под ключом "recipes/<userID>/<uuid>.<ext>"; в рецепт попадает
// публичный URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pribylovaa/go-cheffrey-client/internal/config"
	"github.com/pribylovaa/go-cheffrey-client/internal/pkg/log"
)

const keyPrefix = "recipes"

var (
	// ErrInvalidArgument — недопустимый тип, размер или ключ.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotConfigured — endpoint S3 не задан.
	ErrNotConfigured = errors.New("object storage is not configured")
)

// Photo — загруженная фотография.
type Photo struct {
	Key  string
	URL  string
	Size int64
}

// Uploader — адаптер MinIO для фотографий рецептов.
type Uploader struct {
	s3     config.S3Config
	limits config.PhotoConfig
	client *mclient.Client
}

// New создаёт клиент MinIO: убирает схему из endpoint, выбирает Secure
// по схеме и проверяет, что бакет существует.
func New(ctx context.Context, cfg *config.Config) (*Uploader, error) {
	const op = "media.New"

	if cfg.S3.Endpoint == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	endpoint := cfg.S3.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.S3.Bucket)
	}

	return &Uploader{s3: cfg.S3, limits: cfg.Photo, client: client}, nil
}

// Upload сохраняет фотографию пользователя userID.
// size — точный размер тела; тип и размер проверяются по конфигу до загрузки.
func (u *Uploader) Upload(ctx context.Context, userID, contentType string, r io.Reader, size int64) (*Photo, error) {
	const op = "media.Upload"

	key, err := u.newKey(userID, contentType, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	info, err := u.client.PutObject(ctx, u.s3.Bucket, key, r, size, mclient.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("photo_uploaded",
		slog.String("op", op),
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)

	return &Photo{Key: key, URL: u.PublicURL(key), Size: info.Size}, nil
}

// Remove удаляет фотографию. Ключ должен принадлежать userID.
func (u *Uploader) Remove(ctx context.Context, userID, key string) error {
	const op = "media.Remove"

	if userID == "" || !strings.HasPrefix(key, ownPrefix(userID)) {
		return fmt.Errorf("%s: %w: foreign key", op, ErrInvalidArgument)
	}

	if err := u.client.RemoveObject(ctx, u.s3.Bucket, key, mclient.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PublicURL собирает публичный адрес объекта. Пустая строка, если
// PublicBaseURL не задан.
func (u *Uploader) PublicURL(key string) string {
	if u.s3.PublicBaseURL == "" {
		return ""
	}

	return strings.TrimRight(u.s3.PublicBaseURL, "/") + "/" + key
}

// newKey проверяет ограничения и формирует ключ "recipes/<userID>/<uuid><ext>".
func (u *Uploader) newKey(userID, contentType string, size int64) (string, error) {
	if userID == "" || strings.Contains(userID, "/") {
		return "", fmt.Errorf("%w: user id %q", ErrInvalidArgument, userID)
	}
	if size <= 0 || size > u.limits.MaxSizeBytes {
		return "", fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}
	if !slices.Contains(u.limits.AllowedContentTypes, contentType) {
		return "", fmt.Errorf("%w: content type %q", ErrInvalidArgument, contentType)
	}

	return path.Join(keyPrefix, userID, uuid.NewString()+extension(contentType)), nil
}

func ownPrefix(userID string) string {
	return keyPrefix + "/" + userID + "/"
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
