package pool

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"

	"github.com/roach88/shadowtransform/internal/classfile"
)

// Classpath resolves classes that are linked against but not transformed:
// the host framework and the shadow runtime.
type Classpath interface {
	// Find returns the class with the given binary name.
	Find(name string) (*classfile.ClassFile, bool)
}

// MapClasspath is an in-memory classpath keyed by binary name.
type MapClasspath map[string]*classfile.ClassFile

// Find implements Classpath.
func (m MapClasspath) Find(name string) (*classfile.ClassFile, bool) {
	cf, ok := m[name]
	return cf, ok
}

// Chain searches each classpath in order.
type Chain []Classpath

// Find implements Classpath.
func (c Chain) Find(name string) (*classfile.ClassFile, bool) {
	for _, cp := range c {
		if cf, ok := cp.Find(name); ok {
			return cf, true
		}
	}
	return nil, false
}

// Close closes every member that holds open files.
func (c Chain) Close() error {
	var err error
	for _, cp := range c {
		if cl, ok := cp.(io.Closer); ok {
			err = multierr.Append(err, cl.Close())
		}
	}
	return err
}

// classCache memoizes parsed classes, including misses.
type classCache struct {
	mu      sync.Mutex
	classes map[string]*classfile.ClassFile
}

func (c *classCache) get(name string, load func() ([]byte, error)) (*classfile.ClassFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cf, ok := c.classes[name]; ok {
		return cf, cf != nil
	}
	if c.classes == nil {
		c.classes = map[string]*classfile.ClassFile{}
	}
	var cf *classfile.ClassFile
	data, err := load()
	if err == nil {
		cf, err = classfile.Parse(data)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("unreadable classpath entry", "class", name, "error", err)
	}
	c.classes[name] = cf
	return cf, cf != nil
}

// DirClasspath reads classes lazily from a directory tree.
type DirClasspath struct {
	root  string
	cache classCache
}

// NewDirClasspath returns a classpath rooted at dir.
func NewDirClasspath(dir string) *DirClasspath {
	return &DirClasspath{root: dir}
}

// Find implements Classpath.
func (d *DirClasspath) Find(name string) (*classfile.ClassFile, bool) {
	return d.cache.get(name, func() ([]byte, error) {
		return os.ReadFile(filepath.Join(d.root, filepath.FromSlash(ClassPath(name))))
	})
}

// ArchiveClasspath reads classes lazily from a jar or zip.
type ArchiveClasspath struct {
	rc      *zip.ReadCloser
	entries map[string]*zip.File
	cache   classCache
}

// OpenArchiveClasspath indexes the class entries of an archive.
func OpenArchiveClasspath(path string) (*ArchiveClasspath, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open classpath archive: %w", err)
	}
	a := &ArchiveClasspath{rc: rc, entries: map[string]*zip.File{}}
	for _, f := range rc.File {
		if strings.HasSuffix(f.Name, ".class") {
			a.entries[f.Name] = f
		}
	}
	return a, nil
}

// Find implements Classpath.
func (a *ArchiveClasspath) Find(name string) (*classfile.ClassFile, bool) {
	f, ok := a.entries[ClassPath(name)]
	if !ok {
		return nil, false
	}
	return a.cache.get(name, func() ([]byte, error) {
		r, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	})
}

// Close releases the archive.
func (a *ArchiveClasspath) Close() error {
	return a.rc.Close()
}

// OpenClasspath builds a chain from directories and archives, in order.
// The caller closes the returned chain.
func OpenClasspath(paths ...string) (Chain, error) {
	var chain Chain
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			chain.Close()
			return nil, fmt.Errorf("classpath entry: %w", err)
		}
		if info.IsDir() {
			chain = append(chain, NewDirClasspath(p))
			continue
		}
		a, err := OpenArchiveClasspath(p)
		if err != nil {
			chain.Close()
			return nil, err
		}
		chain = append(chain, a)
	}
	return chain, nil
}
