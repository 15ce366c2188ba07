package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/pool"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigFlags
	Resolve bool
}

// RuleResult is the validation outcome of one rule.
type RuleResult struct {
	Rule    string `json:"rule"`
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Resolved bool         `json:"resolved"`
	Rules    []RuleResult `json:"rules"`
}

// RenderText implements textRenderer.
func (r ValidationResult) RenderText(w io.Writer) {
	for _, rule := range r.Rules {
		if rule.Valid {
			fmt.Fprintf(w, "✓ %s\n", rule.Rule)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", rule.Rule)
		fmt.Fprintf(w, "  [%s] %s\n", rule.Code, rule.Message)
	}
	if r.Valid {
		if r.Resolved {
			fmt.Fprintln(w, "✓ All rules resolve")
		} else {
			fmt.Fprintln(w, "✓ All rules parse")
		}
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [rule...]",
		Short: "Check keep-host-context rules without transforming",
		Long: `Check keep-host-context rules from the arguments, the --rule flag
and the configuration file.

Every rule is parsed. With --resolve the configured inputs and classpath are
loaded and every rule must also name an existing method whose flagged
positions are in range. Nothing is written.

Examples:
  shadow-transform validate 'com.example.Sdk.init(android.content.Context)$1'
  shadow-transform validate --resolve --config shadow.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Rules = append(opts.Rules, args...)
			return runValidate(opts, cmd)
		},
	}

	opts.ConfigFlags.bind(cmd)
	cmd.Flags().BoolVar(&opts.Resolve, "resolve", false, "resolve rules against the configured inputs and classpath")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := LoadConfig(opts.ConfigFlags, opts.Resolve)
	if err != nil {
		return failLoad(formatter, err)
	}
	if len(cfg.KeepHostContext) == 0 {
		return formatter.Fail(ErrCodeNoRules, fmt.Errorf("no rules to validate"), ExitCommandError)
	}

	var p *pool.Pool
	if opts.Resolve {
		loaded, release, err := loadPool(cmd.Context(), cfg)
		if err != nil {
			return failLoad(formatter, err)
		}
		defer release()
		p = loaded
	}

	result := ValidationResult{Valid: true, Resolved: p != nil, Rules: make([]RuleResult, 0, len(cfg.KeepHostContext))}
	for _, rule := range cfg.KeepHostContext {
		formatter.VerboseLog("Validating rule: %s", rule)
		rr := RuleResult{Rule: rule, Valid: true}
		if err := engine.CheckRules(p, []string{rule}); err != nil {
			rr.Valid = false
			rr.Code = string(engine.CodeOf(err))
			rr.Message = err.Error()
			result.Valid = false
		}
		result.Rules = append(result.Rules, rr)
	}

	if result.Valid {
		return formatter.Success(result)
	}

	code := string(engine.ErrCodeMalformedRule)
	for _, rr := range result.Rules {
		if !rr.Valid {
			code = rr.Code
			break
		}
	}
	// Invalid rules still print the per-rule report before failing.
	if opts.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: code, Message: "one or more rules are invalid"},
		}); err != nil {
			return err
		}
	} else {
		result.RenderText(formatter.Writer)
	}
	return NewExitError(ExitFailure, "one or more rules are invalid")
}
