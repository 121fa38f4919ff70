package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichObject(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	out, err := execute(t, "enrich", "--spec", spec, "--object", `{"name":"Ann","age":30}`)
	require.NoError(t, err)
	assert.Equal(t, "{\"age\":30,\"labels\":{\"senior\":true},\"name\":\"Ann\"}\n", out)
}

func TestEnrichNoMatch(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	out, err := execute(t, "enrich", "--spec", spec, "--object", `{"name":"Bob","age":25}`)
	require.NoError(t, err)
	assert.Equal(t, "{\"age\":25,\"name\":\"Bob\"}\n", out)
}

func TestEnrichCleanRoundTrip(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	out, err := execute(t, "enrich", "--spec", spec, "--object", `{"name":"Ann","age":30,"labels":{}}`, "--clean", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   EnrichResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.JSONEq(t, `{"age":30,"labels":{"senior":true},"name":"Ann"}`, string(resp.Data.Enriched))
	assert.Equal(t, []string{"labels.senior"}, resp.Data.Paths)
	assert.JSONEq(t, `{"age":30,"labels":{},"name":"Ann"}`, string(resp.Data.Cleaned))
	require.NotNil(t, resp.Data.Pristine)
	assert.True(t, *resp.Data.Pristine)
}

func TestEnrichPristineWins(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	out, err := execute(t, "enrich", "--spec", spec, "--object", `{"age":30,"labels":{"senior":false}}`, "--clean")
	require.NoError(t, err)
	assert.Equal(t,
		"{\"age\":30,\"labels\":{\"senior\":false}}\n"+
			"{\"age\":30,\"labels\":{\"senior\":false}}\n",
		out)
}

func TestEnrichStoredKey(t *testing.T) {
	dir := t.TempDir()
	spec := writeFile(t, dir, "people.cue", peopleSpec)
	seed := writeFile(t, dir, "seed.yaml", peopleSeed)

	out, err := execute(t, "enrich", "--spec", spec, "--seed", seed, "--key", "people/cid")
	require.NoError(t, err)
	assert.Equal(t, "{\"age\":41,\"labels\":{\"senior\":true},\"name\":\"Cid\"}\n", out)
}

func TestEnrichErrors(t *testing.T) {
	dir := t.TempDir()
	spec := writeFile(t, dir, "people.cue", peopleSpec)
	seed := writeFile(t, dir, "seed.yaml", peopleSeed)
	suspending := writeFile(t, dir, "suspending.cue", `
enrichers: [{
	where: ["query", {prefix: ["people"]}]
	attributes: x: ["number", 1]
}]
`)

	tests := []struct {
		name     string
		args     []string
		exitCode int
		contains string
	}{
		{"not_an_object", []string{"--spec", spec, "--object", `[1,2]`}, ExitCommandError, "expected an object"},
		{"bad_json", []string{"--spec", spec, "--object", `{`}, ExitCommandError, CodeInvalidInput},
		{"missing_key", []string{"--spec", spec, "--seed", seed, "--key", "people/zed"}, ExitFailure, CodeNotFound},
		{"non_object_key", []string{"--spec", spec, "--seed", seed, "--key", "other/x"}, ExitCommandError, "expected an object"},
		{"suspending_where", []string{"--spec", suspending, "--object", `{}`}, ExitFailure, CodeEnrichFailed},
		{"bad_spec", []string{"--spec", writeFile(t, dir, "bad.cue", "enrichers: 3\n"), "--object", `{}`}, ExitCommandError, CodeInvalidSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"enrich"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, out+err.Error(), tt.contains)
		})
	}
}

func TestEnrichRequiresObjectOrKey(t *testing.T) {
	spec := writeFile(t, t.TempDir(), "people.cue", peopleSpec)

	_, err := execute(t, "enrich", "--spec", spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of the flags")
}
