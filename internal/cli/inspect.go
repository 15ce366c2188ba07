package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/pool"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	List bool // print class names only
}

// ClassListing is the disassembly of one class.
type ClassListing struct {
	Name   string `json:"name"`
	Disasm string `json:"disasm,omitempty"`
}

// InspectResult holds the classes the inspect command printed.
type InspectResult struct {
	Classes []ClassListing `json:"classes"`
}

// RenderText implements textRenderer.
func (r InspectResult) RenderText(w io.Writer) {
	for i, c := range r.Classes {
		if c.Disasm == "" {
			fmt.Fprintln(w, c.Name)
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, c.Disasm)
	}
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <class-file|dir|archive> [class...]",
		Short: "Disassemble classes",
		Long: `Print a symbolic disassembly of a class file, or of the classes in a
directory or archive. Naming classes after the path limits the output to
those classes.

Examples:
  shadow-transform inspect build/classes/com/example/MainActivity.class
  shadow-transform inspect plugin.jar com.example.MainActivity
  shadow-transform inspect plugin.jar --list`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.List, "list", false, "list class names without disassembly")

	return cmd
}

func runInspect(opts *InspectOptions, path string, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	classes, err := readClasses(cmd.Context(), path, names)
	if err != nil {
		return failLoad(formatter, err)
	}

	result := InspectResult{Classes: make([]ClassListing, 0, len(classes))}
	for _, cf := range classes {
		listing := ClassListing{Name: classfile.Qualified(cf.Name())}
		if !opts.List {
			text, err := classfile.Disassemble(cf)
			if err != nil {
				return formatter.Fail(ErrCodeGeneric, fmt.Errorf("disassemble %s: %w", listing.Name, err), ExitFailure)
			}
			listing.Disasm = text
		}
		result.Classes = append(result.Classes, listing)
	}
	return formatter.Success(result)
}

// readClasses returns the classes at path in name order, limited to names
// when any are given.
func readClasses(ctx context.Context, path string, names []string) ([]*classfile.ClassFile, error) {
	if strings.EqualFold(filepath.Ext(path), ".class") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: "read class file", Err: err}
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: path, Err: err}
		}
		return []*classfile.ClassFile{cf}, nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	src, err := pool.SourceFor(path, "")
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "resolve input", Err: err}
	}
	p, err := pool.Load(ctx, []pool.Source{src}, pool.MapClasspath(nil))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "load " + path, Err: err}
	}

	if len(names) == 0 {
		records := p.Records()
		out := make([]*classfile.ClassFile, len(records))
		for i, r := range records {
			out[i] = r.Class
		}
		return out, nil
	}
	out := make([]*classfile.ClassFile, 0, len(names))
	for _, name := range names {
		r, err := p.Get(name)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: "find class", Err: err}
		}
		out = append(out, r.Class)
	}
	return out, nil
}
