package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"
	"go.uber.org/multierr"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/status"
	"github.com/roach88/svm/internal/store"
)

// SourceKind says where an app is loaded from.
type SourceKind int

const (
	// SourceDescription is a CUE or YAML app description.
	SourceDescription SourceKind = iota
	// SourceImage is a binary .sab image file.
	SourceImage
	// SourceStore is the latest image of a named app in the image store.
	SourceStore
)

// storePrefix marks a source argument naming an app in the image store.
const storePrefix = "db:"

// Source identifies an app to load: a file path or "db:<app>".
type Source struct {
	Kind SourceKind
	Path string // file path for descriptions and images
	Name string // app name for store sources
}

func (s Source) String() string {
	if s.Kind == SourceStore {
		return storePrefix + s.Name
	}
	return s.Path
}

// ParseSource classifies a source argument by prefix and file extension.
func ParseSource(arg string) (Source, error) {
	if name, ok := strings.CutPrefix(arg, storePrefix); ok {
		if name == "" {
			return Source{}, &LoadError{Code: ErrCodeUnsupported, Message: "store source needs an app name (db:<app>)", Status: status.InvalidArgs}
		}
		return Source{Kind: SourceStore, Name: name}, nil
	}
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".sab":
		return Source{Kind: SourceImage, Path: arg}, nil
	case ".cue", ".yaml", ".yml":
		return Source{Kind: SourceDescription, Path: arg}, nil
	}
	return Source{}, &LoadError{
		Code:    ErrCodeUnsupported,
		Message: fmt.Sprintf("unsupported source %q: want a .cue, .yaml or .sab file or db:<app>", arg),
		Status:  status.InvalidArgs,
	}
}

// LoadOptions configures LoadSource.
type LoadOptions struct {
	Catalog *kit.Catalog
	Store   *store.Store // required for store sources
	Policy  codec.SchemaPolicy
	Logger  *slog.Logger
}

// LoadSource loads the app a source names. Errors are *LoadError, or a
// combination of them (see multierr.Errors) for descriptions that fail to
// build.
func LoadSource(ctx context.Context, src Source, opts LoadOptions) (*app.App, error) {
	var appOpts []app.Option
	if opts.Logger != nil {
		appOpts = append(appOpts, app.WithLogger(opts.Logger))
	}

	switch src.Kind {
	case SourceStore:
		if opts.Store == nil {
			return nil, &LoadError{Code: ErrCodeDatabase, Message: fmt.Sprintf("%s needs --db", src), Status: status.InvalidArgs}
		}
		a, img, err := opts.Store.LoadApp(ctx, src.Name, opts.Catalog,
			codec.WithSchemaPolicy(opts.Policy), codec.WithAppOptions(appOpts...))
		if errors.Is(err, store.ErrNotFound) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("no image for app %q", src.Name), Status: status.CannotOpenFile}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Status: status.CodeOf(err)}
		}
		if opts.Logger != nil {
			opts.Logger.Debug("loaded image", "app", img.App, "revision", img.Revision, "id", img.ID)
		}
		return a, nil

	case SourceImage:
		if _, err := os.Stat(src.Path); os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("image not found: %s", src.Path), Status: status.CannotOpenFile}
		}
		a, err := codec.LoadFile(src.Path, opts.Catalog,
			codec.WithSchemaPolicy(opts.Policy), codec.WithAppOptions(appOpts...))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Status: status.CodeOf(err)}
		}
		return a, nil

	default:
		if _, err := os.Stat(src.Path); os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("description not found: %s", src.Path), Status: status.CannotOpenFile}
		}
		desc, err := compiler.LoadFile(src.Path)
		if err != nil {
			return nil, convertCompileError(err, "loading description")
		}
		a, err := compiler.Build(desc, opts.Catalog, appOpts...)
		if err != nil {
			var errs error
			for _, e := range multierr.Errors(err) {
				errs = multierr.Append(errs, convertCompileError(e, "building app"))
			}
			return nil, errs
		}
		return a, nil
	}
}

// LoadError represents an error that occurred while loading an app.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos   // CUE position if available
	Status  status.Code // runtime status the failure maps to; zero if none
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusOf returns the runtime status a load failure maps to. Failures
// without one, such as description build errors, map to cannotInitApp.
func StatusOf(err error) status.Code {
	var loadErr *LoadError
	if errors.As(err, &loadErr) && loadErr.Status != status.OK {
		return loadErr.Status
	}
	return status.CodeOf(err)
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapCompileErrorToCode(compileErr),
			Message: compileErr.Error(),
			Pos:     compileErr.Pos,
		}
	}
	var validationErr compiler.ValidationError
	if errors.As(err, &validationErr) {
		return &LoadError{
			Code:    validationErr.Code,
			Message: fmt.Sprintf("%s: %s", validationErr.Field, validationErr.Message),
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Description checks use the compiler's E100-E199 codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUnsupported = "E002" // Unsupported source
	ErrCodeLoadFailed  = "E004" // Image or description failed to load
	ErrCodeNotFound    = "E005" // Path or app not found
	ErrCodeBuildFailed = "E006" // App failed to build
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeDatabase    = "E008" // Image store error

	// Build errors
	ErrCodeUnknownType = "E200" // Unknown component type
	ErrCodeBadProperty = "E201" // Unknown slot or bad property value
	ErrCodeBadLink     = "E210" // Link endpoints cannot be linked
)

// MapCompileErrorToCode maps a build error to an error code.
func MapCompileErrorToCode(e *compiler.CompileError) string {
	switch {
	case e.Field == "type":
		return ErrCodeUnknownType
	case strings.HasPrefix(e.Path, "links["):
		return ErrCodeBadLink
	case e.Field != "":
		return ErrCodeBadProperty
	default:
		return ErrCodeBuildFailed
	}
}
