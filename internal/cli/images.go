package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/svm/internal/store"
)

// ImagesOptions holds flags shared by the images subcommands.
type ImagesOptions struct {
	*RootOptions
	Database string
}

// ImageList holds the images listing.
type ImageList struct {
	Images []store.Image `json:"images"`
	Total  int           `json:"total"`
}

// PruneResult reports how many revisions were removed.
type PruneResult struct {
	App     string `json:"app"`
	Removed int64  `json:"removed"`
	Kept    int    `json:"kept"`
}

// NewImagesCommand creates the images command and its subcommands.
func NewImagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage app images in the image store",
		Long: `List, prune and export the app image revisions kept in an SQLite
image store.

Every save of an app stores a new revision unless its bytes equal the
latest revision.

Examples:
  svm images list --db ./svm.db
  svm images prune plant --keep 3 --db ./svm.db
  svm images export plant -o plant.sab --db ./svm.db`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite image store (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newImagesListCommand(opts))
	cmd.AddCommand(newImagesPruneCommand(opts))
	cmd.AddCommand(newImagesExportCommand(opts))

	return cmd
}

func newImagesListCommand(opts *ImagesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list [app]",
		Short:         "List image revisions",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			appName := ""
			if len(args) == 1 {
				appName = args[0]
			}
			return runImagesList(opts, appName, cmd)
		},
	}
}

func newImagesPruneCommand(opts *ImagesOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:           "prune <app>",
		Short:         "Delete all but the newest revisions of an app",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImagesPrune(opts, args[0], keep, cmd)
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 1, "number of newest revisions to keep")
	return cmd
}

func newImagesExportCommand(opts *ImagesOptions) *cobra.Command {
	var output, id string
	cmd := &cobra.Command{
		Use:           "export <app>",
		Short:         "Write an app's latest image to a .sab file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImagesExport(opts, args[0], id, output, cmd)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "image file path (required)")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().StringVar(&id, "id", "", "export this image id instead of the latest revision")
	return cmd
}

func openImageStore(opts *ImagesOptions) (*store.Store, error) {
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("image store not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open image store", err)
	}
	return st, nil
}

func runImagesList(opts *ImagesOptions, appName string, cmd *cobra.Command) error {
	st, err := openImageStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	images, err := st.ListImages(commandContext(cmd), appName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list images", err)
	}
	result := ImageList{Images: images, Total: len(images)}

	if opts.Format == "json" {
		response := CLIResponse{
			Status: "ok",
			Data:   result,
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	w := cmd.OutOrStdout()
	if len(images) == 0 {
		fmt.Fprintln(w, "No images found.")
		return nil
	}
	for _, img := range images {
		fmt.Fprintf(w, "  %-16s r%-4d %s  %6d bytes  %s\n",
			img.App, img.Revision, truncateID(img.ID), img.Size, truncateID(img.Digest))
		if opts.Verbose {
			fmt.Fprintf(w, "       Kits: %s\n", img.Kits)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d image(s)\n", result.Total)
	return nil
}

func runImagesPrune(opts *ImagesOptions, appName string, keep int, cmd *cobra.Command) error {
	if keep < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--keep must be at least 1, got %d", keep))
	}
	st, err := openImageStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.PruneImages(commandContext(cmd), appName, keep)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prune images", err)
	}
	result := PruneResult{App: appName, Removed: removed, Kept: keep}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "Pruned %d revision(s) of %s\n", removed, appName)
	return nil
}

func runImagesExport(opts *ImagesOptions, appName, id, output string, cmd *cobra.Command) error {
	st, err := openImageStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var (
		img  store.Image
		data []byte
	)
	if id != "" {
		img, data, err = st.ReadImage(ctx, id)
		if err == nil && img.App != appName {
			err = fmt.Errorf("image %s belongs to app %q", id, img.App)
		}
	} else {
		img, data, err = st.LatestImage(ctx, appName)
	}
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("no image for app %q", appName))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read image", err)
	}

	if err := os.WriteFile(output, data, 0644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write image file", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if formatter.Format == "json" {
		return formatter.Success(img)
	}
	fmt.Fprintf(formatter.Writer, "Exported %s revision %d to %s (%d bytes)\n", img.App, img.Revision, output, img.Size)
	return nil
}

// truncateID shortens an ID for display purposes.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
