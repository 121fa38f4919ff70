package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docstore/internal/compiler"
)

func runValidateCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidSpec(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	out, err := runValidateCommand(t, "text", spec)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Spec valid (1 queries, 1 enrichers)")
}

func TestValidateValidSpecJSON(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	out, err := runValidateCommand(t, "json", spec)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Queries)
	assert.Equal(t, 1, resp.Data.Enrichers)
}

func TestValidatePackageDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "queries.cue", `
package people

queries: adults: {
	prefix: ["people"]
	filter: [">=", ["attr", "age"], ["number", 30]]
}
`)
	writeFile(t, dir, "enrichers.cue", `
package people

enrichers: [{
	where: ["boolean", true]
	attributes: seen: ["boolean", true]
}]
`)

	out, err := runValidateCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 queries, 1 enrichers)")
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := runValidateCommand(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := runValidateCommand(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateSchemaViolation(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "bad.cue", `queries: q: limit: "ten"`)

	_, err := runValidateCommand(t, "text", spec)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateInvalidSpec(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "bad.cue", `
queries: q: {
	prefix: ["people"]
	filter: ["=", ["call", "shout", [["attr", "name"]]], ["string", "ANN"]]
}

enrichers: [{
	where: ["query", {prefix: ["people"]}]
	attributes: x: ["number", 1]
}]
`)

	out, err := runValidateCommand(t, "text", spec)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownFunction)
	assert.Contains(t, out, compiler.ErrSuspendingCall)
}

func TestValidateInvalidSpecJSON(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "bad.cue", `
queries: q: filter: ["=", ["attr", "name"], ["regexp", "^a"]]
`)

	out, err := runValidateCommand(t, "json", spec)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrRegexpPlacement, resp.Error.Code)
}

func TestValidateOrderingWarnings(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "order.cue", `
enrichers: [{
	where: ["=", ["attr", "kind"], ["string", "page"]]
	attributes: title: ["attr", "heading"]
}, {
	where: ["boolean", true]
	attributes: kind: ["string", "page"]
}]
`)

	out, err := runValidateCommand(t, "text", spec)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: enricher 0 reads \"kind\" which enricher 1 writes later")
	assert.Contains(t, out, "✓ Spec valid")
}

func TestValidateHelpText(t *testing.T) {
	out, err := runValidateCommand(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "spec-dir")
	assert.Contains(t, out, "warnings")
}

func TestLoadSpecsSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.cue")
	require.NoError(t, os.WriteFile(path, []byte(peopleSpec), 0644))

	res, err := LoadSpecs(path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)
	assert.Equal(t, []string{"adults"}, res.Spec.QueryNames())
	assert.Len(t, res.Spec.Enrichers, 1)
}
