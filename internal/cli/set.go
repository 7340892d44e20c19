package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/slot"
	"github.com/roach88/svm/internal/store"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Database string
	Schema   string
}

// SetResult describes a property change saved to an image.
type SetResult struct {
	Target string       `json:"target"`
	Value  string       `json:"value"`
	Output string       `json:"output,omitempty"`
	Image  *store.Image `json:"image,omitempty"`
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <source> <path.slot> <value>",
		Short: "Change a config property in an app image",
		Long: `Change a config property of a saved app.

The source is a binary image (.sab), which is rewritten in place, or
db:<app>, which stores a new image revision. The value is parsed as a YAML
scalar: true, 42, 2.5 or text.

Examples:
  svm set plant.sab f/n.step 3
  svm set --db ./svm.db db:plant sum.in1 2.5`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite image store")
	cmd.Flags().StringVar(&opts.Schema, "schema", "subset", "image schema policy (subset|exact|name-only)")

	return cmd
}

func runSet(opts *SetOptions, arg, target, raw string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := commandContext(cmd)

	src, err := ParseSource(arg)
	if err == nil && src.Kind == SourceDescription {
		err = &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("%s is a description; edit the source instead", arg)}
	}
	if err != nil {
		code, message := parseCompileError(err)
		return outputRunError(formatter, code, message)
	}
	ep, err := compiler.ParseEndpoint(target)
	if err != nil {
		return outputRunError(formatter, ErrCodeBadProperty, err.Error())
	}
	policy, err := codec.ParseSchemaPolicy(opts.Schema)
	if err != nil {
		return outputRunError(formatter, ErrCodeUnsupported, err.Error())
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return outputRunError(formatter, ErrCodeDatabase, fmt.Sprintf("opening image store: %v", err))
		}
		defer st.Close()
	}

	catalog, err := kits.Catalog()
	if err != nil {
		return outputRunError(formatter, ErrCodeGeneric, err.Error())
	}
	a, err := LoadSource(ctx, src, LoadOptions{
		Catalog: catalog,
		Store:   st,
		Policy:  policy,
		Logger:  newLogger(opts.RootOptions, io.Discard),
	})
	if err != nil {
		code, message := parseCompileError(err)
		return outputRunError(formatter, code, message)
	}

	c, d, err := compiler.Resolve(a, ep)
	if err != nil {
		return outputRunError(formatter, ErrCodeBadProperty, err.Error())
	}
	if !d.IsProperty() || !d.IsConfig() {
		return outputRunError(formatter, ErrCodeBadProperty, fmt.Sprintf("%s is not a config property", ep))
	}
	v, err := parseSlotValue(raw, d)
	if err != nil {
		return outputRunError(formatter, ErrCodeBadProperty, fmt.Sprintf("%s: %v", ep, err))
	}
	if err := c.Set(d.ID, v); err != nil {
		return outputRunError(formatter, ErrCodeBadProperty, err.Error())
	}
	formatter.VerboseLog("Set %s = %s", ep, c.Get(d.ID))

	result := SetResult{Target: ep.String(), Value: c.Get(d.ID).String()}
	if src.Kind == SourceStore {
		img, err := st.PutApp(ctx, a)
		if err != nil {
			return outputRunError(formatter, ErrCodeDatabase, fmt.Sprintf("storing image: %v", err))
		}
		result.Image = &img
	} else {
		if err := codec.SaveFile(src.Path, a); err != nil {
			return outputRunError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing image file: %v", err))
		}
		result.Output = src.Path
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s = %s\n", result.Target, result.Value)
	if result.Image != nil {
		fmt.Fprintf(formatter.Writer, "Stored %s revision %d\n", result.Image.App, result.Image.Revision)
	}
	return nil
}

// parseSlotValue parses a command-line value for slot d. Buf slots take
// the text as is; other kinds parse it as a YAML scalar.
func parseSlotValue(raw string, d slot.Def) (slot.Value, error) {
	if d.Kind == slot.Buf {
		return slot.Str(raw), nil
	}
	var x any
	if err := yaml.Unmarshal([]byte(raw), &x); err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	return compiler.ToValue(x, d)
}
