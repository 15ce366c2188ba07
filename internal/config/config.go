// Package config loads run configuration files.
//
// A configuration file is shadow.yaml, shadow.yml or shadow.toml. Files are
// decoded strictly (unknown keys are errors) and the merged configuration is
// validated against an embedded CUE schema before a run uses it.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shadowtransform/internal/pool"
)

//go:embed schema.cue
var schemaSource []byte

// FileNames are the configuration file names Find looks for, in order.
var FileNames = []string{"shadow.yaml", "shadow.yml", "shadow.toml"}

// ErrNotFound reports a directory without a configuration file.
var ErrNotFound = errors.New("no configuration file found")

// Input is one input directory or archive and where its classes go. An
// empty Output rewrites the input in place.
type Input struct {
	Path   string `json:"path" yaml:"path" toml:"path"`
	Output string `json:"output,omitempty" yaml:"output" toml:"output"`
}

// Config is one run's configuration.
type Config struct {
	Inputs          []Input  `json:"inputs,omitempty" yaml:"inputs" toml:"inputs"`
	Classpath       []string `json:"classpath,omitempty" yaml:"classpath" toml:"classpath"`
	KeepHostContext []string `json:"keep_host_context,omitempty" yaml:"keep_host_context" toml:"keep_host_context"`
	Report          string   `json:"report,omitempty" yaml:"report" toml:"report"`

	// Path is the file the configuration was read from, if any.
	Path string `json:"-" yaml:"-" toml:"-"`
}

// Error is a configuration file that cannot be decoded or does not
// satisfy the schema.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Find returns the configuration file in dir.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
}

// Load reads the file at path. Relative paths inside the file are resolved
// against the file's directory. Load does not validate; call Validate once
// command-line values have been merged in.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	var c Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = decodeTOML(data, &c)
	} else {
		err = decodeYAML(data, &c)
	}
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	c.Path = path
	c.resolve(filepath.Dir(path))
	return &c, nil
}

func decodeYAML(data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, c *Config) error {
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Inputs {
		c.Inputs[i].Path = abs(c.Inputs[i].Path)
		c.Inputs[i].Output = abs(c.Inputs[i].Output)
	}
	for i := range c.Classpath {
		c.Classpath[i] = abs(c.Classpath[i])
	}
	c.Report = abs(c.Report)
}

// Validate checks c against the schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &Error{Path: c.Path, Err: err}
	}
	return nil
}

// Sources returns the pool sources of the configured inputs. Inputs must
// exist.
func (c *Config) Sources() ([]pool.Source, error) {
	out := make([]pool.Source, 0, len(c.Inputs))
	for _, in := range c.Inputs {
		src, err := pool.SourceFor(in.Path, in.Output)
		if err != nil {
			return nil, &Error{Path: c.Path, Err: fmt.Errorf("%s: %w", in.Path, err)}
		}
		out = append(out, src)
	}
	return out, nil
}
