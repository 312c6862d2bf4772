package receiptimages

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapspend-backend/pkg/errors"
)

const (
	keyPrefix             = "receipts"
	defaultMaxUploadBytes = 20 * 1024 * 1024
	defaultUploadTTL      = 15 * time.Minute
	defaultReadTTL        = 24 * time.Hour
)

// ObjectStore signs and deletes objects in the configured bucket.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service issues owner-scoped upload and read URLs for receipt photos.
type Service interface {
	PresignUpload(ctx context.Context, userID uuid.UUID, input PresignInput) (*PresignOutput, error)
	ReadURL(ctx context.Context, userID uuid.UUID, key string) (string, error)
	Delete(ctx context.Context, userID uuid.UUID, key string) error
}

// ServiceParams configures the receipt image service.
type ServiceParams struct {
	Store          ObjectStore
	UploadTTL      time.Duration
	ReadTTL        time.Duration
	MaxUploadBytes int64
}

type service struct {
	store     ObjectStore
	uploadTTL time.Duration
	readTTL   time.Duration
	maxBytes  int64
	now       func() time.Time
}

// NewService constructs a receipt image service backed by the object store.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	s := &service{
		store:     params.Store,
		uploadTTL: params.UploadTTL,
		readTTL:   params.ReadTTL,
		maxBytes:  params.MaxUploadBytes,
		now:       time.Now,
	}
	if s.uploadTTL <= 0 {
		s.uploadTTL = defaultUploadTTL
	}
	if s.readTTL <= 0 {
		s.readTTL = defaultReadTTL
	}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxUploadBytes
	}
	return s, nil
}

// PresignInput models the payload required to request an upload URL.
type PresignInput struct {
	MimeType  string `json:"mime_type" validate:"required,image_mime"`
	FileName  string `json:"file_name" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,gt=0"`
}

// PresignOutput is returned to the client, which then PUTs the photo to
// UploadURL and stores Key in the receipt's image_urls.
type PresignOutput struct {
	ImageID     uuid.UUID `json:"image_id"`
	Key         string    `json:"key"`
	UploadURL   string    `json:"upload_url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *service) PresignUpload(ctx context.Context, userID uuid.UUID, input PresignInput) (*PresignOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_name is required")
	}
	if input.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size_bytes must be positive")
	}
	if input.SizeBytes > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeTooLarge, fmt.Sprintf("size_bytes must be ≤ %d bytes", s.maxBytes))
	}
	mime, err := enums.ParseImageMimeType(input.MimeType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mime_type not allowed")
	}

	imageID := uuid.New()
	key := BuildKey(userID, imageID, fileName)

	url, err := s.store.PresignPut(ctx, key, mime.String(), s.uploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign upload url")
	}

	return &PresignOutput{
		ImageID:     imageID,
		Key:         key,
		UploadURL:   url,
		ContentType: mime.String(),
		ExpiresAt:   s.now().Add(s.uploadTTL).UTC(),
	}, nil
}

func (s *service) ReadURL(ctx context.Context, userID uuid.UUID, key string) (string, error) {
	key, err := ownedKey(userID, key)
	if err != nil {
		return "", err
	}
	url, err := s.store.PresignGet(ctx, key, s.readTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign read url")
	}
	return url, nil
}

func (s *service) Delete(ctx context.Context, userID uuid.UUID, key string) error {
	key, err := ownedKey(userID, key)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete image")
	}
	return nil
}

// IsStoredKey reports whether ref names an object written through this
// service rather than an external URL or the no-image marker.
func IsStoredKey(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), keyPrefix+"/")
}

// BuildKey returns receipts/<user>/<image>/<sanitized file name>.
func BuildKey(userID, imageID uuid.UUID, fileName string) string {
	clean := sanitizeFileName(fileName)
	if clean == "" {
		clean = imageID.String()
	}
	return fmt.Sprintf("%s/%s/%s/%s", keyPrefix, userID, imageID, clean)
}

func ownedKey(userID uuid.UUID, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "key is required")
	}
	if path.Clean(key) != key || !strings.HasPrefix(key, fmt.Sprintf("%s/%s/", keyPrefix, userID)) {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "image does not belong to user")
	}
	return key, nil
}

func sanitizeFileName(name string) string {
	clean := path.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}

// ValidateKey returns the trimmed key when it belongs to userID.
func ValidateKey(userID uuid.UUID, key string) (string, error) {
	return ownedKey(userID, key)
}
