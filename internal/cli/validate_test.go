package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/kits"
)

func TestValidateValidDescription(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{plantPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Description valid")
}

func TestValidateValidDescriptionJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{plantPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateNonExistentFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/plant.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E005]")
	assert.Contains(t, buf.String(), "description not found")
}

func TestValidateRejectsImages(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"plant.sab"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E002]")
}

func TestValidateStaticErrors(t *testing.T) {
	desc := `app:
  name: dup
components:
  - name: a
    type: control::Add2
  - name: a
    type: control::Add2
  - name: b
    type: control::Add2
links:
  - a.out b.in1
  - a.out -> b.in2
  - a.out -> b.in2
`
	path := writeFile(t, t.TempDir(), "dup.yaml", desc)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	var codes []string
	for _, e := range resp.Data.Errors {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{
		compiler.ErrDuplicateName,
		compiler.ErrInvalidLinkSyntax,
		compiler.ErrDuplicateLink,
	}, codes)
}

func TestValidateBuildErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", badDescription)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 error(s)")

	output := buf.String()
	assert.Contains(t, output, "E200: /x.type")
	assert.Contains(t, output, "E201: /y.bogus")
}

func TestValidateCUEErrorLine(t *testing.T) {
	src := `app: name: "broken"
components: [
	{name: "a", type: "control::Add2", props: in1: [1, 2]},
]
`
	path := writeFile(t, t.TempDir(), "broken.cue", src)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), "line 3")
}

func TestValidateCycleWarningIsNotAnError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "loop.yaml", loopDescription)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, "warning", resp.Data.Warnings[0].Level)
}

func TestValidateDescriptionHelper(t *testing.T) {
	desc, err := compiler.LoadFile(plantPath)
	require.NoError(t, err)

	silent := &OutputFormatter{Format: "text", Writer: io.Discard}
	errs, warnings := validateDescription(desc, kits.MustCatalog(), silent)
	assert.Empty(t, errs)
	assert.Empty(t, warnings)
}

func TestBuildValidationError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		field string
		code  string
	}{
		{
			name:  "unknown type",
			err:   &compiler.CompileError{Path: "/x", Field: "type", Message: "unknown type"},
			field: "/x.type",
			code:  ErrCodeUnknownType,
		},
		{
			name:  "bad link",
			err:   &compiler.CompileError{Path: "links[0]", Field: "to", Message: "no slot"},
			field: "links[0].to",
			code:  ErrCodeBadLink,
		},
		{
			name:  "bad property",
			err:   &compiler.CompileError{Path: "/y", Field: "step", Message: "overflow"},
			field: "/y.step",
			code:  ErrCodeBadProperty,
		},
		{
			name:  "tree error",
			err:   &compiler.CompileError{Path: "/z", Message: "tree full"},
			field: "/z",
			code:  ErrCodeBuildFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildValidationError(tt.err)
			assert.Equal(t, tt.field, got.Field)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}
