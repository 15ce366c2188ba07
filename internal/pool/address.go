package pool

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/shadowtransform/internal/classfile"
)

// AddressKind tags how an address is written.
type AddressKind string

const (
	// DirAddress is a class file under an output directory.
	DirAddress AddressKind = "dir"

	// ArchiveAddress is an entry in an output archive.
	ArchiveAddress AddressKind = "archive"
)

// Address is the storage location a record is written to on commit.
type Address struct {
	Kind AddressKind `json:"kind"`

	// Root is the output directory or output archive path.
	Root string `json:"root"`

	// Path is the slash-separated file path under Root, or the entry name.
	Path string `json:"path"`
}

// ClassPath returns the conventional relative path of a class file.
func ClassPath(name string) string {
	return classfile.Internal(name) + ".class"
}

// Relocate returns the address name would occupy in the same output.
func (a Address) Relocate(name string) Address {
	a.Path = ClassPath(name)
	return a
}

func (a Address) String() string {
	if a.Kind == ArchiveAddress {
		return fmt.Sprintf("%s!/%s", a.Root, a.Path)
	}
	return filepath.Join(a.Root, filepath.FromSlash(a.Path))
}
