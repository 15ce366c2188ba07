package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowtransform/internal/config"
	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/pool"
)

// ConfigFlags are the command-line values that extend or override the
// configuration file.
type ConfigFlags struct {
	Config    string   // explicit configuration file; empty searches Dir
	Dir       string   // directory searched for a configuration file
	Inputs    []string // "path" or "path=output"; replace the file's inputs
	Classpath []string // appended to the file's classpath
	Rules     []string // appended to the file's rules
	Report    string   // replaces the file's report path
}

func (f *ConfigFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Config, "config", "", "configuration file (default: shadow.yaml, shadow.yml or shadow.toml in the working directory)")
	cmd.Flags().StringArrayVar(&f.Classpath, "classpath", nil, "host classpath directory or archive (repeatable)")
	cmd.Flags().StringArrayVar(&f.Rules, "rule", nil, "keep-host-context rule (repeatable)")
}

// LoadError represents a configuration that cannot be used.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadConfig reads the configuration file named by flags, or the one found
// in flags.Dir, and merges the flag values into it. A missing file is not
// an error unless it was named explicitly. When requireInputs is set the
// merged configuration must satisfy the schema.
func LoadConfig(flags ConfigFlags, requireInputs bool) (*config.Config, error) {
	cfg := &config.Config{}
	path := flags.Config
	if path == "" {
		dir := flags.Dir
		if dir == "" {
			dir = "."
		}
		found, err := config.Find(dir)
		switch {
		case errors.Is(err, config.ErrNotFound):
		case err != nil:
			return nil, &LoadError{Code: ErrCodeConfig, Message: "search for configuration", Err: err}
		default:
			path = found
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeConfig, Message: "load configuration", Err: err}
		}
		cfg = loaded
		slog.Debug("configuration loaded", "path", path)
	}

	if len(flags.Inputs) > 0 {
		cfg.Inputs = cfg.Inputs[:0]
		for _, arg := range flags.Inputs {
			in, out, _ := strings.Cut(arg, "=")
			cfg.Inputs = append(cfg.Inputs, config.Input{Path: in, Output: out})
		}
	}
	cfg.Classpath = append(cfg.Classpath, flags.Classpath...)
	cfg.KeepHostContext = append(cfg.KeepHostContext, flags.Rules...)
	if flags.Report != "" {
		cfg.Report = flags.Report
	}

	if requireInputs || len(cfg.Inputs) > 0 {
		if err := cfg.Validate(); err != nil {
			return nil, &LoadError{Code: ErrCodeConfig, Message: "invalid configuration", Err: err}
		}
	}
	return cfg, nil
}

// loadPool reads the configured inputs against the configured classpath.
// The returned close function releases the classpath archives.
func loadPool(ctx context.Context, cfg *config.Config) (*pool.Pool, func(), error) {
	sources, err := cfg.Sources()
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: "resolve inputs", Err: err}
	}
	cp, err := pool.OpenClasspath(cfg.Classpath...)
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: "open classpath", Err: err}
	}
	release := func() {
		if err := cp.Close(); err != nil {
			slog.Warn("error closing classpath", "error", err)
		}
	}
	p, err := engine.Load(ctx, sources, cp)
	if err != nil {
		release()
		return nil, nil, err
	}
	slog.Debug("inputs loaded", "sources", len(sources), "classes", p.Len())
	return p, release, nil
}

// failLoad reports an error from LoadConfig or loadPool.
func failLoad(f *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return f.Fail(le.Code, err, ExitCommandError)
	}
	return f.Fail(ErrCodeGeneric, err, ExitFailure)
}
