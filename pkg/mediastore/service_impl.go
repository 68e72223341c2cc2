package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/mediastore/objectkey"
	"github.com/tendant/simple-blog/pkg/mediastore/sniff"
)

const (
	maxSwapAttempts = 5
	cleanupTimeout  = 30 * time.Second
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	sniffer    Sniffer
	keys       KeyGenerator
	eventSink  EventSink
	logger     *slog.Logger
	maxSize    int64
	now        func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository (required)
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend (required)
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithSniffer replaces the content type detector
func WithSniffer(sniffer Sniffer) Option {
	return func(s *service) {
		s.sniffer = sniffer
	}
}

// WithKeyGenerator replaces the blob key derivation strategy
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger used for suppressed cleanup and event errors
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMaxObjectSize bounds the size of stored data. Zero disables the limit.
func WithMaxObjectSize(n int64) Option {
	return func(s *service) {
		s.maxSize = n
	}
}

// WithClock overrides the time source for CreatedAt/ModifiedAt
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		maxSize: DefaultMaxObjectSize,
		now:     time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.maxSize < 0 {
		return nil, fmt.Errorf("max object size must not be negative")
	}
	if s.sniffer == nil {
		s.sniffer = sniff.New()
	}
	if s.keys == nil {
		s.keys = objectkey.NewRecommendedGenerator()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) Create(ctx context.Context, name string, data []byte, uploader string) (*Object, error) {
	if err := ValidateName(name); err != nil {
		return nil, &ObjectError{Name: name, Op: "create", Err: err}
	}
	if err := validateUploader(uploader); err != nil {
		return nil, &ObjectError{Name: name, Op: "create", Err: err}
	}
	if err := s.checkData(data); err != nil {
		return nil, &ObjectError{Name: name, Op: "create", Err: err}
	}

	// The repository enforces uniqueness; this only avoids a wasted upload.
	if _, err := s.repository.GetObject(ctx, name); err == nil {
		return nil, &ObjectError{Name: name, Op: "create", Err: fmt.Errorf("name already in use: %w", corerr.ErrConflict)}
	} else if !errors.Is(err, corerr.ErrNotFound) {
		return nil, &ObjectError{Name: name, Op: "create", Err: err}
	}

	contentType := s.sniffer.Detect(sniffPrefix(data))
	key := s.keys.GenerateKey(name, uuid.New())
	if err := s.blobStore.Write(ctx, key, data); err != nil {
		return nil, &ObjectError{Name: name, Op: "create", Err: err}
	}

	now := s.now().UTC()
	obj := &Object{
		Name:        name,
		BlobRef:     key,
		ContentType: contentType,
		Uploader:    uploader,
		SizeBytes:   int64(len(data)),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if err := s.repository.CreateObject(ctx, obj); err != nil {
		s.discardBlob(ctx, "create", name, key)
		return nil, &ObjectError{Name: name, Op: "create", Err: err}
	}

	s.emit(ctx, "created", obj, s.eventSink.ObjectCreated)
	return obj, nil
}

func (s *service) UpdateContent(ctx context.Context, name string, data []byte) (*Object, error) {
	if err := s.checkData(data); err != nil {
		return nil, &ObjectError{Name: name, Op: "update", Err: err}
	}
	current, err := s.repository.GetObject(ctx, name)
	if err != nil {
		return nil, &ObjectError{Name: name, Op: "update", Err: err}
	}

	contentType := s.sniffer.Detect(sniffPrefix(data))
	key := s.keys.GenerateKey(name, uuid.New())
	if err := s.blobStore.Write(ctx, key, data); err != nil {
		return nil, &ObjectError{Name: name, Op: "update", Err: err}
	}

	for attempt := 1; ; attempt++ {
		updated, err := s.repository.SwapBlob(ctx, BlobUpdate{
			Name:        name,
			OldRef:      current.BlobRef,
			NewRef:      key,
			ContentType: contentType,
			SizeBytes:   int64(len(data)),
			ModifiedAt:  s.now().UTC(),
		})
		if err == nil {
			s.discardBlob(ctx, "update", name, current.BlobRef)
			s.emit(ctx, "updated", updated, s.eventSink.ObjectUpdated)
			return updated, nil
		}

		if errors.Is(err, ErrRefChanged) && attempt < maxSwapAttempts {
			// Another update won the race; swap against its revision instead.
			if current, err = s.repository.GetObject(ctx, name); err == nil {
				continue
			}
		}
		if errors.Is(err, ErrRefChanged) {
			err = corerr.Unavailable(fmt.Errorf("gave up after %d concurrent updates: %w", attempt, err))
		}
		s.discardBlob(ctx, "update", name, key)
		return nil, &ObjectError{Name: name, Op: "update", Err: err}
	}
}

func (s *service) Get(ctx context.Context, name string) (*Object, error) {
	obj, err := s.repository.GetObject(ctx, name)
	if err != nil {
		return nil, &ObjectError{Name: name, Op: "get", Err: err}
	}
	return obj, nil
}

func (s *service) Open(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	obj, err := s.repository.GetObject(ctx, name)
	if err != nil {
		return nil, nil, &ObjectError{Name: name, Op: "open", Err: err}
	}
	rc, err := s.blobStore.Open(ctx, obj.BlobRef)
	if errors.Is(err, corerr.ErrNotFound) {
		// The revision may have been replaced between the two reads.
		var fresh *Object
		if fresh, err = s.repository.GetObject(ctx, name); err == nil {
			if fresh.BlobRef == obj.BlobRef {
				err = fmt.Errorf("blob %s missing: %w", obj.BlobRef, corerr.ErrNotFound)
			} else {
				obj = fresh
				rc, err = s.blobStore.Open(ctx, obj.BlobRef)
			}
		}
	}
	if err != nil {
		return nil, nil, &ObjectError{Name: name, Op: "open", Err: err}
	}
	return rc, obj, nil
}

func (s *service) Delete(ctx context.Context, name string) error {
	obj, err := s.repository.DeleteObject(ctx, name)
	if errors.Is(err, corerr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return &ObjectError{Name: name, Op: "delete", Err: err}
	}

	s.discardBlob(ctx, "delete", name, obj.BlobRef)
	s.emit(ctx, "deleted", obj, s.eventSink.ObjectDeleted)
	return nil
}

func (s *service) SetSafetyChecked(ctx context.Context, name string, checked bool) (*Object, error) {
	obj, err := s.repository.SetSafetyChecked(ctx, name, checked, s.now().UTC())
	if err != nil {
		return nil, &ObjectError{Name: name, Op: "set_safety_checked", Err: err}
	}
	s.emit(ctx, "updated", obj, s.eventSink.ObjectUpdated)
	return obj, nil
}

func (s *service) List(ctx context.Context, req ListObjectsRequest) ([]*Object, error) {
	if req.Limit < 0 || req.Offset < 0 {
		return nil, corerr.Invalid("limit and offset must not be negative")
	}
	objs, err := s.repository.ListObjects(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return objs, nil
}

func (s *service) checkData(data []byte) error {
	if len(data) == 0 {
		return corerr.Invalid("data is empty")
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return corerr.Invalid(fmt.Sprintf("data is %d bytes, limit is %d", len(data), s.maxSize))
	}
	return nil
}

// discardBlob deletes a blob that no record references any more. Failures
// leave an orphan behind and are only logged.
func (s *service) discardBlob(ctx context.Context, op, name, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.blobStore.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete blob", "op", op, "name", name, "key", key, "err", err)
	}
}

func (s *service) emit(ctx context.Context, event string, obj *Object, fn func(context.Context, *Object) error) {
	if err := fn(ctx, obj); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "name", obj.Name, "err", err)
	}
}

func sniffPrefix(data []byte) []byte {
	return data[:min(len(data), SniffLength)]
}

// ValidateName reports whether name is acceptable as an object name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return corerr.Invalid("name is empty")
	case !utf8.ValidString(name):
		return corerr.Invalid("name is not valid UTF-8")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return corerr.Invalid(fmt.Sprintf("name exceeds %d characters", MaxNameLength))
	case strings.ContainsRune(name, 0):
		return corerr.Invalid("name contains NUL")
	case strings.HasPrefix(name, "/"):
		return corerr.Invalid("name starts with /")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return corerr.Invalid("name contains a .. segment")
		}
	}
	return nil
}

func validateUploader(uploader string) error {
	switch {
	case strings.TrimSpace(uploader) == "":
		return corerr.Invalid("uploader is empty")
	case utf8.RuneCountInString(uploader) > MaxUploaderLength:
		return corerr.Invalid(fmt.Sprintf("uploader exceeds %d characters", MaxUploaderLength))
	case strings.ContainsRune(uploader, 0):
		return corerr.Invalid("uploader contains NUL")
	}
	return nil
}
