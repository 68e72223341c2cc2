// Package tags manages blog tags and their per-language display names.
//
// A tag is rendered with the translation for the requested language when
// one exists and with its raw identifier otherwise. Resolve never fails:
// lookup errors are logged and degrade to the identifier.
package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/tendant/simple-blog/pkg/corerr"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute
)

type cacheEntry struct {
	res       Resolution
	expiresAt time.Time
}

// Catalog is the tag catalog.
type Catalog struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	cacheSize int
	cacheTTL  time.Duration
	cache     *lru.Cache[string, cacheEntry]
	group     singleflight.Group

	// mu orders cache fills against invalidations. gen is bumped by every
	// translation write so that a lookup started before the write does not
	// repopulate the cache with its stale result.
	mu  sync.Mutex
	gen uint64
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache sets the resolution cache size and entry lifetime. A size of
// zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Catalog) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithClock overrides the time source for cache expiry and attach times.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// New creates a catalog over repo.
func New(repo Repository, opts ...Option) (*Catalog, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	c := &Catalog{
		repo:      repo,
		logger:    slog.Default(),
		now:       time.Now,
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize < 0 || c.cacheTTL < 0 {
		return nil, fmt.Errorf("cache size and ttl must not be negative")
	}
	if c.cacheSize > 0 && c.cacheTTL > 0 {
		cache, err := lru.New[string, cacheEntry](c.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create resolution cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// CreateTag registers a new tag identifier.
func (c *Catalog) CreateTag(ctx context.Context, identifier string) (*Tag, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return nil, &TagError{Tag: identifier, Op: "create", Err: err}
	}
	tag := &Tag{ID: uuid.New(), Identifier: identifier}
	if err := c.repo.CreateTag(ctx, tag); err != nil {
		return nil, &TagError{Tag: identifier, Op: "create", Err: err}
	}
	return tag, nil
}

// GetTag finds a tag by identifier.
func (c *Catalog) GetTag(ctx context.Context, identifier string) (*Tag, error) {
	tag, err := c.repo.GetTagByIdentifier(ctx, identifier)
	if err != nil {
		return nil, &TagError{Tag: identifier, Op: "get", Err: err}
	}
	return tag, nil
}

// DeleteTag removes a tag together with its translations and relations.
func (c *Catalog) DeleteTag(ctx context.Context, id uuid.UUID) error {
	err := c.repo.DeleteTag(ctx, id)
	c.invalidateTag(id)
	if err != nil {
		return &TagError{Tag: id.String(), Op: "delete", Err: err}
	}
	return nil
}

// SetTranslation creates or replaces the display name of a tag in language.
func (c *Catalog) SetTranslation(ctx context.Context, tagID uuid.UUID, lang, name string) error {
	canonical, err := CanonicalLanguage(lang)
	if err != nil {
		return &TagError{Tag: tagID.String(), Op: "set_translation", Err: err}
	}
	if err := validateName(name); err != nil {
		return &TagError{Tag: tagID.String(), Op: "set_translation", Err: err}
	}

	err = c.repo.UpsertTranslation(ctx, Translation{TagID: tagID, Language: canonical, Name: name})
	c.invalidate(cacheKey(tagID, canonical))
	if err != nil {
		return &TagError{Tag: tagID.String(), Op: "set_translation", Err: err}
	}
	return nil
}

// Translations lists every translation of a tag ordered by language.
func (c *Catalog) Translations(ctx context.Context, tagID uuid.UUID) ([]Translation, error) {
	trs, err := c.repo.ListTranslations(ctx, tagID)
	if err != nil {
		return nil, &TagError{Tag: tagID.String(), Op: "translations", Err: err}
	}
	return trs, nil
}

// Lookup reports the translation of tag for lang. A missing translation is
// not an error; Found is false. A malformed language fails with
// corerr.ErrInvalidInput.
func (c *Catalog) Lookup(ctx context.Context, tag Tag, lang string) (Resolution, error) {
	canonical, err := CanonicalLanguage(lang)
	if err != nil {
		return Resolution{}, &TagError{Tag: tag.Identifier, Op: "lookup", Err: err}
	}
	key := cacheKey(tag.ID, canonical)

	if c.cache != nil {
		if entry, ok := c.cache.Get(key); ok {
			if c.now().Before(entry.expiresAt) {
				return entry.res, nil
			}
			c.cache.Remove(key)
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		gen := c.generation()
		res, err := c.fetch(ctx, tag.ID, canonical)
		if err != nil {
			return Resolution{}, err
		}
		c.fill(key, gen, res)
		return res, nil
	})
	if err != nil {
		return Resolution{}, &TagError{Tag: tag.Identifier, Op: "lookup", Err: err}
	}
	return v.(Resolution), nil
}

func (c *Catalog) fetch(ctx context.Context, tagID uuid.UUID, lang string) (Resolution, error) {
	tr, err := c.repo.GetTranslation(ctx, tagID, lang)
	if errors.Is(err, corerr.ErrNotFound) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Name: tr.Name, Found: true}, nil
}

// Resolve returns the display name of tag in lang, falling back to the
// tag's identifier.
func (c *Catalog) Resolve(ctx context.Context, tag Tag, lang string) string {
	res, err := c.Lookup(ctx, tag, lang)
	if err != nil {
		c.logger.WarnContext(ctx, "tag translation lookup failed, using identifier",
			"tag", tag.Identifier, "language", lang, "err", err)
		return tag.Identifier
	}
	if res.Found {
		return res.Name
	}
	return tag.Identifier
}

// AttachTag relates a post and a tag. Attaching twice is a no-op.
func (c *Catalog) AttachTag(ctx context.Context, postID, tagID uuid.UUID) error {
	if err := c.repo.AttachTag(ctx, postID, tagID, c.now().UTC()); err != nil {
		return &TagError{Tag: tagID.String(), Op: "attach", Err: err}
	}
	return nil
}

// DetachTag removes a post/tag relation. Detaching an absent relation succeeds.
func (c *Catalog) DetachTag(ctx context.Context, postID, tagID uuid.UUID) error {
	if err := c.repo.DetachTag(ctx, postID, tagID); err != nil {
		return &TagError{Tag: tagID.String(), Op: "detach", Err: err}
	}
	return nil
}

// Tags returns the tags of a post in attach order.
func (c *Catalog) Tags(ctx context.Context, postID uuid.UUID) ([]Tag, error) {
	tags, err := c.repo.ListPostTags(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("tags of post %s: %w", postID, err)
	}
	return tags, nil
}

// TagsAsCSV returns the raw identifiers of a post's tags joined by commas.
func (c *Catalog) TagsAsCSV(ctx context.Context, postID uuid.UUID) (string, error) {
	tags, err := c.Tags(ctx, postID)
	if err != nil {
		return "", err
	}
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.Identifier
	}
	return strings.Join(ids, ","), nil
}

func (c *Catalog) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// fill caches res unless a write happened since gen was read.
func (c *Catalog) fill(key string, gen uint64, res Resolution) {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.cache.Add(key, cacheEntry{res: res, expiresAt: c.now().Add(c.cacheTTL)})
	}
}

func (c *Catalog) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cache != nil {
		c.cache.Remove(key)
	}
}

func (c *Catalog) invalidateTag(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cache == nil {
		return
	}
	prefix := id.String() + "|"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

func cacheKey(tagID uuid.UUID, lang string) string {
	return tagID.String() + "|" + lang
}

// CanonicalLanguage validates a BCP 47 language code and returns its
// canonical form, e.g. "en-us" becomes "en-US".
func CanonicalLanguage(lang string) (string, error) {
	if lang == "" {
		return "", corerr.Invalid("language is empty")
	}
	if len(lang) > MaxLanguageLength {
		return "", corerr.Invalid(fmt.Sprintf("language %q exceeds %d characters", lang, MaxLanguageLength))
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", corerr.Invalid(fmt.Sprintf("language %q: %v", lang, err))
	}
	canonical := tag.String()
	if len(canonical) > MaxLanguageLength {
		return "", corerr.Invalid(fmt.Sprintf("language %q exceeds %d characters", canonical, MaxLanguageLength))
	}
	return canonical, nil
}

// ValidateIdentifier reports whether s is a usable tag identifier: 1 to 20
// characters from [A-Za-z0-9._~-].
func ValidateIdentifier(s string) error {
	if s == "" || len(s) > MaxIdentifierLength {
		return corerr.Invalid(fmt.Sprintf("identifier must be 1 to %d characters", MaxIdentifierLength))
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '~', r == '-':
		default:
			return corerr.Invalid(fmt.Sprintf("identifier contains %q", r))
		}
	}
	return nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if strings.TrimSpace(name) == "" || n > MaxNameLength {
		return corerr.Invalid(fmt.Sprintf("name must be 1 to %d characters", MaxNameLength))
	}
	return nil
}
