// Package objectkey derives blob storage keys for object revisions.
//
// Every revision of an object gets its own key, so a key is written once
// and never replaced in place.
package objectkey

import (
	"crypto/sha256"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxNamePart bounds the human-readable suffix kept in a key.
const maxNamePart = 100

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates the blob key for one revision of the named object
	GenerateKey(name string, revision uuid.UUID) string
}

// FlatGenerator keeps one directory per revision: media/{revision}/{file}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(name string, revision uuid.UUID) string {
	if file := fileComponent(name); file != "" {
		return fmt.Sprintf("media/%s/%s", revision, file)
	}
	return fmt.Sprintf("media/%s", revision)
}

// GitLikeGenerator provides Git-style sharded storage keyed by revision
// Structure: objects/ab/cd1234ef5678..._filename
type GitLikeGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator() *GitLikeGenerator {
	return &GitLikeGenerator{
		ShardLength: 2,
	}
}

func (g *GitLikeGenerator) GenerateKey(name string, revision uuid.UUID) string {
	id := strings.ReplaceAll(revision.String(), "-", "")
	return shardedKey(id, g.ShardLength, fileComponent(name))
}

// NameHashedGenerator shards by a hash of the object name so that all
// revisions of one object land in the same directory:
// objects/ab/cdef0123456789/{revision}_filename
type NameHashedGenerator struct {
	ShardLength int
}

func NewNameHashedGenerator() *NameHashedGenerator {
	return &NameHashedGenerator{
		ShardLength: 2,
	}
}

func (g *NameHashedGenerator) GenerateKey(name string, revision uuid.UUID) string {
	sum := fmt.Sprintf("%x", sha256.Sum256([]byte(name)))
	shard := clampShard(g.ShardLength, len(sum))
	file := revision.String()
	if part := fileComponent(name); part != "" {
		file += "_" + part
	}
	return fmt.Sprintf("objects/%s/%s/%s", sum[:shard], sum[shard:16], file)
}

// FuncGenerator allows users to provide their own key generation function
type FuncGenerator struct {
	GenerateFunc func(name string, revision uuid.UUID) string
}

func NewFuncGenerator(fn func(name string, revision uuid.UUID) string) *FuncGenerator {
	return &FuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *FuncGenerator) GenerateKey(name string, revision uuid.UUID) string {
	return g.GenerateFunc(name, revision)
}

func shardedKey(id string, shardLength int, file string) string {
	shard := clampShard(shardLength, len(id))
	filename := id[shard:]
	if file != "" {
		filename = fmt.Sprintf("%s_%s", filename, file)
	}
	return fmt.Sprintf("objects/%s/%s", id[:shard], filename)
}

func clampShard(n, limit int) int {
	switch {
	case n <= 0:
		return 2
	case n > limit:
		return limit
	}
	return n
}

// fileComponent reduces an object name to a single safe path element.
func fileComponent(name string) string {
	base := path.Base(strings.TrimRight(name, "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	base = sanitizeFilename(base)
	if len(base) > maxNamePart {
		cut := len(base) - maxNamePart
		for cut < len(base) && !utf8.RuneStart(base[cut]) {
			cut++
		}
		base = base[cut:]
	}
	return base
}

// Helper functions for path sanitization
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"\x00", "_",
	)
	return replacer.Replace(filename)
}

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewGitLikeGenerator()
}
