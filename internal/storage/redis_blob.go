package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coach-chat/internal/feed"
)

const (
	keyPrefix       = "media:"
	maxNameAttempts = 3
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrForeignURL      = errors.New("url does not belong to this store")
	ErrNameTaken       = errors.New("no free blob name")
)

// image subtypes accepted as attachments
var imageTypes = map[string]bool{
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
	"heic": true,
}

// Blob is a stored attachment.
type Blob struct {
	Data        []byte
	ContentType string
}

// RedisBlobStore keeps attachment bytes in Redis hashes under
// media:<owner>/<millis>-<suffix>.<ext>. The random suffix keeps uploads made by one
// owner within the same millisecond apart.
type RedisBlobStore struct {
	client  *redis.Client
	baseURL string
	ttl     time.Duration
	now     func() time.Time
	suffix  func() string
	log     *zap.Logger
}

// NewRedisBlobStore builds a store publishing URLs under baseURL. A zero ttl keeps
// blobs until deleted.
func NewRedisBlobStore(client *redis.Client, baseURL string, ttl time.Duration, log *zap.Logger) *RedisBlobStore {
	return &RedisBlobStore{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
		suffix:  randomSuffix,
		log:     log,
	}
}

var _ feed.BlobStorage = (*RedisBlobStore)(nil)

// Upload stores data for ownerID and returns its public URL. An empty or generic
// content type is replaced by the sniffed one.
func (s *RedisBlobStore) Upload(ctx context.Context, ownerID string, data []byte, contentType string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, "/:") {
		return "", fmt.Errorf("invalid owner id %q", ownerID)
	}
	if len(data) == 0 {
		return "", errors.New("empty attachment")
	}

	ext, contentType, err := normalizeType(data, contentType)
	if err != nil {
		return "", err
	}

	var name string
	for attempt := 0; ; attempt++ {
		name = fmt.Sprintf("%s/%d-%s.%s", ownerID, s.now().UnixMilli(), s.suffix(), ext)
		created, err := s.store(ctx, keyPrefix+name, contentType, data)
		if err != nil {
			return "", fmt.Errorf("store blob: %w", err)
		}
		if created {
			break
		}
		if attempt == maxNameAttempts-1 {
			return "", fmt.Errorf("store blob: %w", ErrNameTaken)
		}
	}

	s.log.Debug("blob stored", zap.String("name", name), zap.Int("bytes", len(data)))
	return s.baseURL + "/" + name, nil
}

// store writes the blob only if key is unused. The data field is claimed with HSETNX,
// so an existing blob is never overwritten.
func (s *RedisBlobStore) store(ctx context.Context, key, contentType string, data []byte) (bool, error) {
	created, err := s.client.HSetNX(ctx, key, "data", data).Result()
	if err != nil || !created {
		return false, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "content_type", contentType)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		_ = s.client.Del(context.WithoutCancel(ctx), key).Err()
		return false, err
	}
	return true, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Delete removes the blob behind url. Deleting a missing blob is not an error.
func (s *RedisBlobStore) Delete(ctx context.Context, url string) error {
	name, err := s.NameFromURL(url)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, keyPrefix+name).Err()
}

// Get loads a blob by name (<owner>/<file>).
func (s *RedisBlobStore) Get(ctx context.Context, name string) (Blob, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+name).Result()
	if err != nil {
		return Blob{}, err
	}
	data, ok := fields["data"]
	if !ok {
		return Blob{}, ErrBlobNotFound
	}
	return Blob{Data: []byte(data), ContentType: fields["content_type"]}, nil
}

// NameFromURL strips the public prefix from url.
func (s *RedisBlobStore) NameFromURL(url string) (string, error) {
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || name == "" {
		return "", ErrForeignURL
	}
	return name, nil
}

func normalizeType(data []byte, declared string) (ext, contentType string, err error) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "" || declared == "application/octet-stream" {
		declared = mimetype.Detect(data).String()
	}

	sub, ok := strings.CutPrefix(declared, "image/")
	if sub == "jpg" {
		sub = "jpeg"
	}
	if !ok || !imageTypes[sub] {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, declared)
	}
	return sub, "image/" + sub, nil
}
