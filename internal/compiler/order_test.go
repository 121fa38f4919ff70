package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeOrderingClean(t *testing.T) {
	spec, err := CompileString(peopleSpec, "")
	require.NoError(t, err)
	assert.Empty(t, AnalyzeOrdering(spec.Enrichers))
}

func TestAnalyzeOrderingForwardRead(t *testing.T) {
	spec, err := CompileString(`enrichers: [{
		where: ["boolean", true]
		attributes: banner: ["+", ["string", "Hi "], ["attr", "fullName"]]
	}, {
		where: ["boolean", true]
		attributes: fullName: ["attr", "firstName"]
	}]`, "")
	require.NoError(t, err)

	warnings := AnalyzeOrdering(spec.Enrichers)
	require.Len(t, warnings, 1)
	assert.Equal(t, 0, warnings[0].Reader)
	assert.Equal(t, 1, warnings[0].Writer)
	assert.Equal(t, "fullName", warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "enricher 0 reads")
}

func TestAnalyzeOrderingNestedPaths(t *testing.T) {
	spec, err := CompileString(`enrichers: [{
		where: ["=", ["attr", ["attr", "page"], "title"], ["string", "x"]]
		attributes: seen: ["boolean", true]
	}, {
		where: ["boolean", true]
		attributes: "page.title": ["string", "x"]
	}]`, "")
	require.NoError(t, err)

	warnings := AnalyzeOrdering(spec.Enrichers)
	require.Len(t, warnings, 1)
	assert.Equal(t, "page.title", warnings[0].Path)
}

func TestAnalyzeOrderingEarlierWriteWins(t *testing.T) {
	spec, err := CompileString(`enrichers: [{
		where: ["boolean", true]
		attributes: list: ["array", [["string", "a"]]]
	}, {
		where: ["boolean", true]
		attributes: count: ["call", "count", [["attr", "list"]]]
	}, {
		where: ["boolean", true]
		attributes: list: ["array", [["string", "b"]]]
	}]`, "")
	require.NoError(t, err)
	assert.Empty(t, AnalyzeOrdering(spec.Enrichers))
}
