package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/store"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Database    string
	Schema      string
	Description bool // print the app as a YAML description
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <source>",
		Short: "Print an app's component tree and links",
		Long: `Print the component tree and links of an app.

Only config properties that differ from their defaults are shown. With
--description the app is printed as a YAML description that compile
accepts, which turns an image back into editable source.

Examples:
  svm dump plant.sab
  svm dump --db ./svm.db db:plant --format json
  svm dump plant.sab --description > plant.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite image store")
	cmd.Flags().StringVar(&opts.Schema, "schema", "subset", "image schema policy (subset|exact|name-only)")
	cmd.Flags().BoolVar(&opts.Description, "description", false, "print as a YAML app description")

	return cmd
}

func runDump(opts *DumpOptions, arg string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := ParseSource(arg)
	if err != nil {
		code, message := parseCompileError(err)
		return outputRunError(formatter, code, message)
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
	a, err := LoadSource(commandContext(cmd), src, LoadOptions{
		Catalog: catalog,
		Store:   st,
		Policy:  policy,
		Logger:  newLogger(opts.RootOptions, io.Discard),
	})
	if err != nil {
		code, message := parseCompileError(err)
		return outputRunError(formatter, code, message)
	}

	desc := compiler.Describe(a)
	switch {
	case formatter.Format == "json":
		return formatter.Success(desc)
	case opts.Description:
		enc := yaml.NewEncoder(formatter.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(desc); err != nil {
			return WrapExitError(ExitCommandError, "encoding description", err)
		}
		return enc.Close()
	}
	outputDumpText(formatter.Writer, desc)
	return nil
}

// outputDumpText prints the component tree, one component per line,
// followed by the links.
func outputDumpText(w io.Writer, desc *compiler.Description) {
	fmt.Fprintf(w, "%s %s\n", desc.App.Name, formatProps(desc.App.Props))
	dumpComponents(w, desc.Components, 1)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Links ===")
	if len(desc.Links) == 0 {
		fmt.Fprintln(w, "  (no links)")
		return
	}
	for _, l := range desc.Links {
		fmt.Fprintf(w, "  %s\n", l)
	}
}

func dumpComponents(w io.Writer, specs []compiler.ComponentSpec, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range specs {
		fmt.Fprintf(w, "%s%s (%s)", indent, s.Name, s.Type)
		if len(s.Props) > 0 {
			fmt.Fprintf(w, " %s", formatProps(s.Props))
		}
		fmt.Fprintln(w)
		dumpComponents(w, s.Children, depth+1)
	}
}

// formatProps formats a property map for display.
// Uses sorted keys to ensure deterministic output.
func formatProps(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := props[k]
		if s, ok := v.(string); ok {
			v = fmt.Sprintf("%q", s)
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
