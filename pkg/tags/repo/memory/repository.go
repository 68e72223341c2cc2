package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-blog/pkg/corerr"
	"github.com/tendant/simple-blog/pkg/tags"
)

type relationKey struct {
	postID uuid.UUID
	tagID  uuid.UUID
}

type relation struct {
	seq        int64
	attachedAt time.Time
}

type translationKey struct {
	tagID    uuid.UUID
	language string
}

// Repository implements tags.Repository using in-memory storage. Posts are
// not tracked here, so any post id is accepted.
type Repository struct {
	mu           sync.RWMutex
	tags         map[uuid.UUID]*tags.Tag
	byIdentifier map[string]uuid.UUID
	translations map[translationKey]string
	relations    map[relationKey]relation
	seq          int64
}

var _ tags.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		tags:         make(map[uuid.UUID]*tags.Tag),
		byIdentifier: make(map[string]uuid.UUID),
		translations: make(map[translationKey]string),
		relations:    make(map[relationKey]relation),
	}
}

func (r *Repository) CreateTag(ctx context.Context, tag *tags.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byIdentifier[tag.Identifier]; exists {
		return fmt.Errorf("identifier %q: %w", tag.Identifier, corerr.ErrConflict)
	}
	if _, exists := r.tags[tag.ID]; exists {
		return fmt.Errorf("tag %s: %w", tag.ID, corerr.ErrConflict)
	}
	tagCopy := *tag
	r.tags[tag.ID] = &tagCopy
	r.byIdentifier[tag.Identifier] = tag.ID
	return nil
}

func (r *Repository) GetTag(ctx context.Context, id uuid.UUID) (*tags.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tag, exists := r.tags[id]
	if !exists {
		return nil, fmt.Errorf("tag %s: %w", id, corerr.ErrNotFound)
	}
	tagCopy := *tag
	return &tagCopy, nil
}

func (r *Repository) GetTagByIdentifier(ctx context.Context, identifier string) (*tags.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byIdentifier[identifier]
	if !exists {
		return nil, fmt.Errorf("identifier %q: %w", identifier, corerr.ErrNotFound)
	}
	tagCopy := *r.tags[id]
	return &tagCopy, nil
}

func (r *Repository) DeleteTag(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, exists := r.tags[id]
	if !exists {
		return fmt.Errorf("tag %s: %w", id, corerr.ErrNotFound)
	}
	delete(r.tags, id)
	delete(r.byIdentifier, tag.Identifier)
	for k := range r.translations {
		if k.tagID == id {
			delete(r.translations, k)
		}
	}
	for k := range r.relations {
		if k.tagID == id {
			delete(r.relations, k)
		}
	}
	return nil
}

func (r *Repository) UpsertTranslation(ctx context.Context, tr tags.Translation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tags[tr.TagID]; !exists {
		return fmt.Errorf("tag %s: %w", tr.TagID, corerr.ErrNotFound)
	}
	r.translations[translationKey{tagID: tr.TagID, language: tr.Language}] = tr.Name
	return nil
}

func (r *Repository) GetTranslation(ctx context.Context, tagID uuid.UUID, language string) (*tags.Translation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.translations[translationKey{tagID: tagID, language: language}]
	if !exists {
		return nil, fmt.Errorf("translation %s/%s: %w", tagID, language, corerr.ErrNotFound)
	}
	return &tags.Translation{TagID: tagID, Language: language, Name: name}, nil
}

func (r *Repository) ListTranslations(ctx context.Context, tagID uuid.UUID) ([]tags.Translation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.tags[tagID]; !exists {
		return nil, fmt.Errorf("tag %s: %w", tagID, corerr.ErrNotFound)
	}
	var result []tags.Translation
	for k, name := range r.translations {
		if k.tagID == tagID {
			result = append(result, tags.Translation{TagID: tagID, Language: k.language, Name: name})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Language < result[j].Language })
	return result, nil
}

func (r *Repository) AttachTag(ctx context.Context, postID, tagID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tags[tagID]; !exists {
		return fmt.Errorf("tag %s: %w", tagID, corerr.ErrNotFound)
	}
	key := relationKey{postID: postID, tagID: tagID}
	if _, exists := r.relations[key]; exists {
		return nil
	}
	r.seq++
	r.relations[key] = relation{seq: r.seq, attachedAt: at}
	return nil
}

func (r *Repository) DetachTag(ctx context.Context, postID, tagID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.relations, relationKey{postID: postID, tagID: tagID})
	return nil
}

func (r *Repository) ListPostTags(ctx context.Context, postID uuid.UUID) ([]tags.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type entry struct {
		tag tags.Tag
		seq int64
	}
	var entries []entry
	for k, rel := range r.relations {
		if k.postID == postID {
			entries = append(entries, entry{tag: *r.tags[k.tagID], seq: rel.seq})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	result := make([]tags.Tag, len(entries))
	for i, e := range entries {
		result[i] = e.tag
	}
	return result, nil
}
