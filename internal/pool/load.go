package pool

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/shadowtransform/internal/classfile"
)

// Source is one input of the run and the output its classes go to.
type Source struct {
	Kind   AddressKind `json:"kind" yaml:"kind"`
	Input  string      `json:"input" yaml:"input"`
	Output string      `json:"output" yaml:"output"`
}

// SourceFor infers the source kind from the input: a directory is
// directory-backed, anything else is read as an archive.
func SourceFor(input, output string) (Source, error) {
	info, err := os.Stat(input)
	if err != nil {
		return Source{}, fmt.Errorf("input: %w", err)
	}
	kind := ArchiveAddress
	if info.IsDir() {
		kind = DirAddress
	}
	if output == "" {
		output = input
	}
	return Source{Kind: kind, Input: input, Output: output}, nil
}

// Resource is a non-class archive entry carried unchanged to the output.
type Resource struct {
	Root   string
	Name   string
	Method uint16
	Data   []byte
}

type loadedClass struct {
	path  string
	class *classfile.ClassFile
}

type loadedSource struct {
	classes   []loadedClass
	resources []Resource
}

// Load reads and parses every source concurrently, then registers the
// classes in source order so that the resulting pool does not depend on
// scheduling.
func Load(ctx context.Context, sources []Source, cp Classpath) (*Pool, error) {
	results := make([]loadedSource, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			var (
				res loadedSource
				err error
			)
			switch src.Kind {
			case DirAddress:
				res, err = readDir(ctx, src)
			case ArchiveAddress:
				res, err = readArchive(ctx, src)
			default:
				err = fmt.Errorf("unknown source kind %q", src.Kind)
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", src.Input, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := New(cp)
	for i, src := range sources {
		for _, c := range results[i].classes {
			rec := &Record{
				Class:   c.class,
				Address: Address{Kind: src.Kind, Root: src.Output, Path: c.path},
				Origin:  src.Input,
			}
			if err := p.Add(rec); err != nil {
				return nil, fmt.Errorf("%s: %w", rec.Address, err)
			}
		}
		p.resources = append(p.resources, results[i].resources...)
		slog.Debug("loaded source", "input", src.Input, "kind", src.Kind, "classes", len(results[i].classes))
	}
	// Literal references can only be resolved once every class is known.
	p.RefreshAll()
	return p, nil
}

func isClassEntry(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(base, ".class") && base != "module-info.class" && base != "package-info.class"
}

func parseEntry(name string, data []byte) (*classfile.ClassFile, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cf, nil
}

func readDir(ctx context.Context, src Source) (loadedSource, error) {
	var res loadedSource
	err := filepath.WalkDir(src.Input, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isClassEntry(p) {
			return nil
		}
		rel, err := filepath.Rel(src.Input, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		cf, err := parseEntry(rel, data)
		if err != nil {
			return err
		}
		res.classes = append(res.classes, loadedClass{path: filepath.ToSlash(rel), class: cf})
		return nil
	})
	return res, err
}

func readArchive(ctx context.Context, src Source) (loadedSource, error) {
	var res loadedSource
	rc, err := zip.OpenReader(src.Input)
	if err != nil {
		return res, err
	}
	defer rc.Close()

	for _, f := range rc.File {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return res, fmt.Errorf("%s: %w", f.Name, err)
		}
		if !isClassEntry(f.Name) {
			res.resources = append(res.resources, Resource{Root: src.Output, Name: f.Name, Method: f.Method, Data: data})
			continue
		}
		cf, err := parseEntry(f.Name, data)
		if err != nil {
			return res, err
		}
		res.classes = append(res.classes, loadedClass{path: f.Name, class: cf})
	}
	return res, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
