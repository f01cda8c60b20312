// Package storage emulates named-bucket blob storage: uploads are kept as
// base64 documents in the key-value store and URLs are synthesized rather
// than served — no access control is simulated.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/models"
	"github.com/forgeapps/localbase/src/netsim"
)

const objectsDoc = "objects"

var (
	ErrObjectExists   = errors.New("The resource already exists")
	ErrObjectNotFound = errors.New("Object not found")
)

type Service struct {
	mu sync.Mutex

	kv     models.DocStore
	cfg    *config.StorageConfig
	delay  *netsim.Delay
	logger zerolog.Logger

	objects  map[string]*models.StoredObject // keyed by bucket/path
	failures map[string]error
}

func NewService(cfg *config.StorageConfig, store models.DocStore, delay *netsim.Delay, logger zerolog.Logger) *Service {
	s := &Service{
		kv:       store,
		cfg:      cfg,
		delay:    delay,
		logger:   logger.With().Str("component", "storage").Logger(),
		objects:  make(map[string]*models.StoredObject),
		failures: make(map[string]error),
	}

	var doc map[string]*models.StoredObject
	if ok, _ := s.kv.GetJSON(context.Background(), objectsDoc, &doc); ok && doc != nil {
		s.objects = doc
	}
	return s
}

// Bucket returns a handle scoped to one named bucket. Buckets need no
// creation step; they exist by being referenced.
func (s *Service) Bucket(name string) *Bucket {
	return &Bucket{svc: s, name: name}
}

type Bucket struct {
	svc  *Service
	name string
}

type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// Upload stores data under bucket/path. With Upsert false an existing
// identity is a conflict; with Upsert true the object is overwritten.
func (b *Bucket) Upload(ctx context.Context, objectPath string, data []byte, opts UploadOptions) (string, error) {
	s := b.svc
	if err := s.checkFailure("upload"); err != nil {
		return "", err
	}
	s.delay.Wait(ctx)

	key := objectKey(b.name, objectPath)

	s.mu.Lock()
	existing, exists := s.objects[key]
	if exists && !opts.Upsert {
		s.mu.Unlock()
		return "", ErrObjectExists
	}

	now := time.Now()
	obj := &models.StoredObject{
		ID:        uuid.New().String(),
		Name:      path.Base(objectPath),
		Bucket:    b.name,
		Path:      objectPath,
		Size:      len(data),
		MimeType:  contentType(opts.ContentType, objectPath),
		Data:      base64.StdEncoding.EncodeToString(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if exists {
		obj.ID = existing.ID
		obj.CreatedAt = existing.CreatedAt
	}
	s.objects[key] = obj
	s.persist(ctx)
	s.mu.Unlock()

	return objectPath, nil
}

func (b *Bucket) Download(ctx context.Context, objectPath string) ([]byte, error) {
	s := b.svc
	if err := s.checkFailure("download"); err != nil {
		return nil, err
	}
	s.delay.Wait(ctx)

	s.mu.Lock()
	obj, ok := s.objects[objectKey(b.name, objectPath)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrObjectNotFound
	}

	data, err := base64.StdEncoding.DecodeString(obj.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored object: %w", err)
	}
	return data, nil
}

// Remove deletes the named objects; unknown paths are skipped. The removed
// objects are returned.
func (b *Bucket) Remove(ctx context.Context, paths []string) ([]models.StoredObject, error) {
	s := b.svc
	if err := s.checkFailure("remove"); err != nil {
		return nil, err
	}
	s.delay.Wait(ctx)

	s.mu.Lock()
	removed := make([]models.StoredObject, 0, len(paths))
	for _, p := range paths {
		key := objectKey(b.name, p)
		if obj, ok := s.objects[key]; ok {
			removed = append(removed, *obj)
			delete(s.objects, key)
		}
	}
	if len(removed) > 0 {
		s.persist(ctx)
	}
	s.mu.Unlock()

	return removed, nil
}

// List returns the bucket's objects whose path starts with prefix, sorted by
// path.
func (b *Bucket) List(ctx context.Context, prefix string) ([]models.StoredObject, error) {
	s := b.svc
	if err := s.checkFailure("list"); err != nil {
		return nil, err
	}
	s.delay.Wait(ctx)

	s.mu.Lock()
	listed := make([]models.StoredObject, 0)
	for _, obj := range s.objects {
		if obj.Bucket == b.name && strings.HasPrefix(obj.Path, prefix) {
			listed = append(listed, *obj)
		}
	}
	s.mu.Unlock()

	sort.Slice(listed, func(i, j int) bool { return listed[i].Path < listed[j].Path })
	return listed, nil
}

// GetPublicURL synthesizes the deterministic public URL for bucket/path.
// Pure string construction; the object need not exist.
func (b *Bucket) GetPublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		b.svc.cfg.PublicURLBase, b.name, objectPath)
}

// CreateSignedURL returns a time-limited URL carrying a real signed token,
// so application code that parses the token finds the expected claims. The
// object must exist.
func (b *Bucket) CreateSignedURL(objectPath string, expiresIn time.Duration) (string, error) {
	s := b.svc

	s.mu.Lock()
	_, ok := s.objects[objectKey(b.name, objectPath)]
	s.mu.Unlock()
	if !ok {
		return "", ErrObjectNotFound
	}

	expiry := time.Now().Add(expiresIn)
	claims := jwt.MapClaims{
		"bucket": b.name,
		"path":   objectPath,
		"exp":    expiry.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.URLSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign url token: %w", err)
	}

	return fmt.Sprintf("%s/storage/v1/object/sign/%s/%s?token=%s",
		s.cfg.PublicURLBase, b.name, objectPath, token), nil
}

// RemoveOwnedBy deletes every object whose path's first segment is the user
// id. Part of the user-delete cascade.
func (s *Service) RemoveOwnedBy(ctx context.Context, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, obj := range s.objects {
		if first, _, _ := strings.Cut(obj.Path, "/"); first == userID {
			delete(s.objects, key)
			removed++
		}
	}
	if removed > 0 {
		s.persist(ctx)
	}
	return removed
}

func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*models.StoredObject)
	s.failures = make(map[string]error)
}

func (s *Service) SimulateError(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, operation)
		return
	}
	s.failures[operation] = err
}

func (s *Service) checkFailure(operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[operation]
}

// persist writes the objects document. Callers hold s.mu.
func (s *Service) persist(ctx context.Context) {
	if err := s.kv.SetJSON(ctx, objectsDoc, s.objects); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist objects")
	}
}

func objectKey(bucket, objectPath string) string {
	return bucket + "/" + objectPath
}

func contentType(explicit, objectPath string) string {
	if explicit != "" {
		return explicit
	}
	if ct := mime.TypeByExtension(path.Ext(objectPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
