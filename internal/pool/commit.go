package pool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
)

type outputEntry struct {
	name   string
	method uint16
	data   []byte
}

type output struct {
	kind    AddressKind
	root    string
	entries map[string]outputEntry
}

// Commit writes every record to its address. Every class is encoded before
// the first byte is written, so an encoding failure leaves all outputs
// untouched. Each directory file and each archive is replaced atomically.
func (p *Pool) Commit(ctx context.Context) error {
	outs := map[string]*output{}
	outFor := func(kind AddressKind, root string) (*output, error) {
		if o, ok := outs[root]; ok {
			if o.kind != kind {
				return nil, fmt.Errorf("output %s used as both %s and %s", root, o.kind, kind)
			}
			return o, nil
		}
		o := &output{kind: kind, root: root, entries: map[string]outputEntry{}}
		outs[root] = o
		return o, nil
	}

	for _, r := range p.Records() {
		data, err := r.Class.Bytes()
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.Name, err)
		}
		o, err := outFor(r.Address.Kind, r.Address.Root)
		if err != nil {
			return err
		}
		if _, taken := o.entries[r.Address.Path]; taken {
			return fmt.Errorf("%w: address %s", ErrDuplicateClass, r.Address)
		}
		o.entries[r.Address.Path] = outputEntry{name: r.Address.Path, method: zip.Deflate, data: data}
	}
	for _, res := range p.resources {
		o, err := outFor(ArchiveAddress, res.Root)
		if err != nil {
			return err
		}
		if _, taken := o.entries[res.Name]; !taken {
			o.entries[res.Name] = outputEntry{name: res.Name, method: res.Method, data: res.Data}
		}
	}

	roots := make([]string, 0, len(outs))
	for root := range outs {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := outs[root]
		var err error
		if o.kind == DirAddress {
			err = o.writeDir()
		} else {
			err = o.writeArchive()
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", root, err)
		}
		slog.Debug("committed output", "root", root, "kind", o.kind, "entries", len(o.entries))
	}
	return nil
}

func (o *output) sorted() []outputEntry {
	list := make([]outputEntry, 0, len(o.entries))
	for _, e := range o.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

func (o *output) writeDir() error {
	for _, e := range o.sorted() {
		target := filepath.Join(o.root, filepath.FromSlash(e.name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeAtomic(target, func(f *os.File) error {
			_, err := f.Write(e.data)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func (o *output) writeArchive() error {
	if err := os.MkdirAll(filepath.Dir(o.root), 0o755); err != nil {
		return err
	}
	return writeAtomic(o.root, func(f *os.File) error {
		zw := zip.NewWriter(f)
		for _, e := range o.sorted() {
			w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
			if err != nil {
				return multierr.Append(err, zw.Close())
			}
			if _, err := w.Write(e.data); err != nil {
				return multierr.Append(err, zw.Close())
			}
		}
		return zw.Close()
	})
}

// writeAtomic fills a temporary file next to target and renames it into
// place. The temporary file is removed on any failure.
func writeAtomic(target string, fill func(*os.File) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(target), ".shadow-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmp))
		}
	}()

	if err = f.Chmod(0o644); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err = fill(f); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err = f.Sync(); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
