package domain

import (
	lru "github.com/hashicorp/golang-lru/v2"

	m "runnel.dev/pkg/runnel/internal/model"
)

// DefaultCacheSize is the number of file trees kept by default.
const DefaultCacheSize = 4096

type fileKey struct {
	crate string
	path  m.Path
	hash  string
}

// FileCache memoizes file trees by file fingerprint. The fingerprint covers
// the content of the file and everything its tree reads from other files, so
// the cache never decides that a tree is stale: a changed input yields a new
// hash and simply misses. A nil *FileCache caches nothing.
type FileCache struct {
	trees *lru.Cache[fileKey, *m.Module]
}

// NewFileCache returns a cache holding up to size file trees.
func NewFileCache(size int) (*FileCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	trees, err := lru.New[fileKey, *m.Module](size)
	if err != nil {
		return nil, err
	}

	return &FileCache{trees: trees}, nil
}

// Get returns the cached tree of file, which may be nil for a file without
// runnables.
func (c *FileCache) Get(crate string, file m.File) (*m.Module, bool) {
	if c == nil || file.Hash == "" {
		return nil, false
	}

	return c.trees.Get(fileKey{crate: crate, path: file.FullPath, hash: file.Hash})
}

// Add stores the tree of file.
func (c *FileCache) Add(crate string, file m.File, root *m.Module) {
	if c == nil || file.Hash == "" {
		return
	}

	c.trees.Add(fileKey{crate: crate, path: file.FullPath, hash: file.Hash}, root)
}

// Len returns the number of cached trees.
func (c *FileCache) Len() int {
	if c == nil {
		return 0
	}

	return c.trees.Len()
}
