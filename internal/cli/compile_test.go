package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/store"
)

var plantPath = filepath.Join("..", "..", "testdata", "apps", "plant.yaml")

const badDescription = `app:
  name: bad
components:
  - name: x
    type: control::Nope
  - name: y
    type: control::Add2
    props:
      bogus: 1
`

const loopDescription = `app:
  name: loop
components:
  - name: a
    type: control::Add2
  - name: b
    type: control::Add2
links:
  - a.out -> b.in1
  - b.out -> a.in1
`

// writeFile writes content to name in dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// compilePlant compiles the plant description to a .sab file in a temp dir.
func compilePlant(t *testing.T) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "plant.sab")
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{plantPath, "-o", out})
	require.NoError(t, cmd.Execute())
	return out
}

func TestCompileDescription(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{plantPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled plant: 5 component(s), 2 link(s)")
	assert.NotContains(t, output, "warning")
}

func TestCompileDescriptionJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{plantPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   CompileSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "plant", resp.Data.App)
	assert.Equal(t, 5, resp.Data.Components)
	assert.Equal(t, 2, resp.Data.Links)
	assert.Positive(t, resp.Data.Size)
}

func TestCompileOutputToFile(t *testing.T) {
	out := compilePlant(t)

	a, err := codec.LoadFile(out, kits.MustCatalog())
	require.NoError(t, err)
	assert.Equal(t, "plant", a.Root().Name())
	assert.Equal(t, 5, a.Len())
	assert.Len(t, a.Links(), 2)
}

func TestCompileToStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "svm.db")

	compile := func() string {
		buf := &bytes.Buffer{}
		cmd := NewCompileCommand(&RootOptions{Format: "text"})
		cmd.SetOut(buf)
		cmd.SetArgs([]string{plantPath, "--db", dbPath})
		require.NoError(t, cmd.Execute())
		return buf.String()
	}

	assert.Contains(t, compile(), "Stored plant revision 1")
	// Unchanged bytes reuse the latest revision
	assert.Contains(t, compile(), "Stored plant revision 1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	images, err := st.ListImages(context.Background(), "plant")
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestCompileCUEDescription(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("..", "..", "testdata", "apps", "boiler.cue")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Compiled")
	assert.Contains(t, buf.String(), "3 link(s)")
}

func TestCompileNonExistentFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/plant.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "E005") // ErrCodeNotFound
	assert.Contains(t, buf.String(), "not found")
}

func TestCompileUnsupportedSource(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want string
	}{
		{"unknown extension", "plant.txt", "unsupported source"},
		{"image", "plant.sab", "not an app description"},
		{"store", "db:plant", "not an app description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := NewCompileCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetArgs([]string{tt.arg})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, buf.String(), "E002")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestCompileBuildErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", badDescription)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 error(s)")

	output := buf.String()
	assert.Contains(t, output, "✗ Compilation failed")
	assert.Contains(t, output, "E200")
	assert.Contains(t, output, `unknown type "control::Nope"`)
	assert.Contains(t, output, "E201")
	assert.Contains(t, output, "bogus")
}

func TestCompileBuildErrorsJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", badDescription)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.Error(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Error  CLIError   `json:"error"`
		Data   []CLIError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E200", resp.Error.Code)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "E201", resp.Data[1].Code)
}

func TestCompileCycleWarning(t *testing.T) {
	path := writeFile(t, t.TempDir(), "loop.yaml", loopDescription)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Compiled loop")
	assert.Contains(t, buf.String(), "warning: feedback loop")
}

func TestCompileVerboseLogsToStderr(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{plantPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errBuf.String(), "Compiling")

	// Stdout holds only the JSON response
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
}
