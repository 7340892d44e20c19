package cli

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/store"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		arg  string
		want Source
	}{
		{"plant.cue", Source{Kind: SourceDescription, Path: "plant.cue"}},
		{"dir/plant.YAML", Source{Kind: SourceDescription, Path: "dir/plant.YAML"}},
		{"plant.yml", Source{Kind: SourceDescription, Path: "plant.yml"}},
		{"plant.sab", Source{Kind: SourceImage, Path: "plant.sab"}},
		{"db:plant", Source{Kind: SourceStore, Name: "plant"}},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseSource(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.arg, got.String())
		})
	}
}

func TestParseSourceErrors(t *testing.T) {
	for _, arg := range []string{"db:", "plant.json", "plant"} {
		t.Run(arg, func(t *testing.T) {
			_, err := ParseSource(arg)
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr))
			assert.Equal(t, ErrCodeUnsupported, loadErr.Code)
		})
	}
}

func TestLoadSourceDescription(t *testing.T) {
	a, err := LoadSource(context.Background(), Source{Kind: SourceDescription, Path: plantPath},
		LoadOptions{Catalog: kits.MustCatalog()})
	require.NoError(t, err)
	assert.Equal(t, "app plant (5 components)", a.String())
}

func TestLoadSourceBuildErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", badDescription)

	_, err := LoadSource(context.Background(), Source{Kind: SourceDescription, Path: path},
		LoadOptions{Catalog: kits.MustCatalog()})
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	var first *LoadError
	require.True(t, errors.As(errs[0], &first))
	assert.Equal(t, ErrCodeUnknownType, first.Code)
}

func TestLoadSourceStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "svm.db"))
	require.NoError(t, err)
	defer st.Close()

	catalog := kits.MustCatalog()
	src := Source{Kind: SourceStore, Name: "plant"}

	_, err = LoadSource(ctx, src, LoadOptions{Catalog: catalog})
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrCodeDatabase, loadErr.Code)

	_, err = LoadSource(ctx, src, LoadOptions{Catalog: catalog, Store: st})
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)

	a, err := compiler.CompileFile(plantPath, catalog)
	require.NoError(t, err)
	_, err = st.PutApp(ctx, a)
	require.NoError(t, err)

	loaded, err := LoadSource(ctx, src, LoadOptions{Catalog: catalog, Store: st})
	require.NoError(t, err)
	assert.Equal(t, a.Len(), loaded.Len())
}

func TestLoadErrorFormat(t *testing.T) {
	err := &LoadError{Code: ErrCodeNotFound, Message: "image not found: x.sab"}
	assert.Equal(t, "E005: image not found: x.sab", err.Error())
}

func TestConvertCompileError(t *testing.T) {
	v := convertCompileError(compiler.ValidationError{Field: "links[0]", Message: "bad", Code: compiler.ErrInvalidLinkSyntax}, "x")
	assert.Equal(t, compiler.ErrInvalidLinkSyntax, v.Code)
	assert.Equal(t, "links[0]: bad", v.Message)

	g := convertCompileError(errors.New("boom"), "loading description")
	assert.Equal(t, ErrCodeGeneric, g.Code)
	assert.Equal(t, "loading description: boom", g.Message)
}
