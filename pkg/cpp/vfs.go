// vfs.go abstracts header resources behind a virtual filesystem so that
// includes can resolve against real files, in-memory trees, or a caching
// layer.
package cpp

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// VirtualFileSystem resolves paths to virtual files.
type VirtualFileSystem interface {
	// GetFile returns a handle for the given path. The handle exists
	// even if the underlying file does not; check IsFile.
	GetFile(path string) VirtualFile
	// GetFileIn resolves name relative to dir.
	GetFileIn(dir, name string) VirtualFile
}

// VirtualFile is an abstract handle to a header resource.
type VirtualFile interface {
	IsFile() bool
	Path() string
	ParentFile() VirtualFile
	ChildFile(name string) VirtualFile
	// Source returns a fresh lexer source over the file contents.
	Source() (Source, error)
}

// OSFileSystem serves files from the operating system.
type OSFileSystem struct{}

// NewOSFileSystem returns a filesystem backed by the host OS.
func NewOSFileSystem() *OSFileSystem { return &OSFileSystem{} }

func (fs *OSFileSystem) GetFile(p string) VirtualFile {
	return &osFile{fs: fs, path: filepath.Clean(p)}
}

func (fs *OSFileSystem) GetFileIn(dir, name string) VirtualFile {
	return fs.GetFile(filepath.Join(dir, name))
}

type osFile struct {
	fs   *OSFileSystem
	path string
}

func (f *osFile) IsFile() bool {
	st, err := os.Stat(f.path)
	return err == nil && st.Mode().IsRegular()
}

func (f *osFile) Path() string { return f.path }

func (f *osFile) ParentFile() VirtualFile {
	dir := filepath.Dir(f.path)
	if dir == f.path {
		return nil
	}
	return f.fs.GetFile(dir)
}

func (f *osFile) ChildFile(name string) VirtualFile {
	return f.fs.GetFile(filepath.Join(f.path, name))
}

func (f *osFile) Source() (Source, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	return newLexerSource(string(content), f.path, f.path), nil
}

// MemoryFileSystem serves files from an in-memory map of slash-separated
// paths to contents. Embedders and tests use it to preprocess without
// touching disk.
type MemoryFileSystem struct {
	files map[string]string
}

// NewMemoryFileSystem returns a filesystem over the given path-to-content
// map.
func NewMemoryFileSystem(files map[string]string) *MemoryFileSystem {
	normalized := make(map[string]string, len(files))
	for p, content := range files {
		normalized[path.Clean(p)] = content
	}
	return &MemoryFileSystem{files: normalized}
}

func (fs *MemoryFileSystem) GetFile(p string) VirtualFile {
	return &memoryFile{fs: fs, path: path.Clean(p)}
}

func (fs *MemoryFileSystem) GetFileIn(dir, name string) VirtualFile {
	return fs.GetFile(path.Join(dir, name))
}

type memoryFile struct {
	fs   *MemoryFileSystem
	path string
}

func (f *memoryFile) IsFile() bool {
	_, ok := f.fs.files[f.path]
	return ok
}

func (f *memoryFile) Path() string { return f.path }

func (f *memoryFile) ParentFile() VirtualFile {
	dir := path.Dir(f.path)
	if dir == f.path {
		return nil
	}
	return f.fs.GetFile(dir)
}

func (f *memoryFile) ChildFile(name string) VirtualFile {
	return f.fs.GetFile(path.Join(f.path, name))
}

func (f *memoryFile) Source() (Source, error) {
	content, ok := f.fs.files[f.path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: f.path, Err: os.ErrNotExist}
	}
	return newLexerSource(content, f.path, f.path), nil
}

// CachingFileSystem is an OS-backed filesystem with an LRU cache of file
// contents, so headers included from many translation units are read once.
type CachingFileSystem struct {
	cache *lru.Cache[string, string]
}

// NewCachingFileSystem returns a caching filesystem holding up to size
// file contents.
func NewCachingFileSystem(size int) (*CachingFileSystem, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachingFileSystem{cache: cache}, nil
}

func (fs *CachingFileSystem) GetFile(p string) VirtualFile {
	return &cachingFile{fs: fs, path: filepath.Clean(p)}
}

func (fs *CachingFileSystem) GetFileIn(dir, name string) VirtualFile {
	return fs.GetFile(filepath.Join(dir, name))
}

type cachingFile struct {
	fs   *CachingFileSystem
	path string
}

func (f *cachingFile) IsFile() bool {
	if f.fs.cache.Contains(f.path) {
		return true
	}
	st, err := os.Stat(f.path)
	return err == nil && st.Mode().IsRegular()
}

func (f *cachingFile) Path() string { return f.path }

func (f *cachingFile) ParentFile() VirtualFile {
	dir := filepath.Dir(f.path)
	if dir == f.path {
		return nil
	}
	return f.fs.GetFile(dir)
}

func (f *cachingFile) ChildFile(name string) VirtualFile {
	return f.fs.GetFile(filepath.Join(f.path, name))
}

func (f *cachingFile) Source() (Source, error) {
	if content, ok := f.fs.cache.Get(f.path); ok {
		return newLexerSource(content, f.path, f.path), nil
	}
	content, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	f.fs.cache.Add(f.path, string(content))
	return newLexerSource(string(content), f.path, f.path), nil
}

// isAbsoluteInclude reports whether an include name bypasses the search
// paths. Accepts both rooted POSIX names and platform-absolute paths.
func isAbsoluteInclude(name string) bool {
	return strings.HasPrefix(name, "/") || filepath.IsAbs(name)
}
