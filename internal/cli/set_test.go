package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/slot"
	"github.com/roach88/svm/internal/store"
)

func TestSetImageProperty(t *testing.T) {
	path := compilePlant(t)

	buf := &bytes.Buffer{}
	cmd := NewSetCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "f/n.step", "5"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "✓ f/n.step = 5\n", buf.String())

	a, err := codec.LoadFile(path, kits.MustCatalog())
	require.NoError(t, err)
	c, d, err := compiler.Resolve(a, compiler.Endpoint{Path: "f/n", Slot: "step"})
	require.NoError(t, err)
	assert.Equal(t, int32(5), c.GetInt(d.ID))
}

func TestSetStoreProperty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "svm.db")
	compileCmd := NewCompileCommand(&RootOptions{Format: "text"})
	compileCmd.SetOut(&bytes.Buffer{})
	compileCmd.SetArgs([]string{plantPath, "--db", dbPath})
	require.NoError(t, compileCmd.Execute())

	buf := &bytes.Buffer{}
	cmd := NewSetCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "db:plant", "k.out", "4.5"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data SetResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "k.out", resp.Data.Target)
	assert.Equal(t, "4.5F", resp.Data.Value)
	require.NotNil(t, resp.Data.Image)
	assert.Equal(t, int64(2), resp.Data.Image.Revision)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	a, img, err := st.LoadApp(context.Background(), "plant", kits.MustCatalog())
	require.NoError(t, err)
	assert.Equal(t, int64(2), img.Revision)
	c, d, err := compiler.Resolve(a, compiler.Endpoint{Path: "k", Slot: "out"})
	require.NoError(t, err)
	assert.Equal(t, float32(4.5), c.GetFloat(d.ID))
}

func TestSetErrors(t *testing.T) {
	path := compilePlant(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"description source", []string{plantPath, "k.out", "1"}, "E002"},
		{"no slot in target", []string{path, "k", "1"}, "has no slot"},
		{"unknown component", []string{path, "nope.out", "1"}, "E201"},
		{"runtime property", []string{path, "sum.out", "1"}, "not a config property"},
		{"action", []string{path, "f/n.reset", "1"}, "not a config property"},
		{"bad value", []string{path, "f/n.step", "[1, 2]"}, "unsupported value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := NewSetCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestParseSlotValue(t *testing.T) {
	tests := []struct {
		raw  string
		def  slot.Def
		want slot.Value
	}{
		{"true", slot.Def{Kind: slot.Bool}, slot.BoolValue(true)},
		{"42", slot.Def{Kind: slot.Int}, slot.IntValue(42)},
		{"42", slot.Def{Kind: slot.Long}, slot.LongValue(42)},
		{"2.5", slot.Def{Kind: slot.Double}, slot.DoubleValue(2.5)},
		{"42", slot.Def{Kind: slot.Buf}, slot.Str("42")},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.def.Kind.String(), func(t *testing.T) {
			got, err := parseSlotValue(tt.raw, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseSlotValue("text", slot.Def{Kind: slot.Int})
	assert.Error(t, err)
}
