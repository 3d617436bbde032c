package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repowiki/internal/wiki"
)

func sampleRecord() *wiki.AnalyzeCacheRecord {
	return &wiki.AnalyzeCacheRecord{
		CacheKey: "acme__shop__abc123",
		Owner:    "acme",
		Repo:     "shop",
		HeadSHA:  "abc123",
		Result: wiki.AnalyzeResult{
			ProductSummary: "An online store.",
			Subsystems: []wiki.Subsystem{
				{ID: "checkout", Name: "Checkout", Description: "Pays for orders."},
				{ID: "search", Name: "Search", Description: "Finds products."},
			},
			WikiPages: []wiki.WikiPage{
				{SubsystemID: "checkout", SubsystemName: "Checkout", Markdown: "## Overview\n\nPays.", Citations: make([]wiki.Citation, 2), EvidenceSource: wiki.EvidenceFromModel},
				{SubsystemID: "search", SubsystemName: "Search", Markdown: "## Overview\n\nFinds.", Citations: make([]wiki.Citation, 1), EvidenceSource: wiki.EvidenceFromFallback},
			},
		},
	}
}

func TestWriteWiki(t *testing.T) {
	rec := sampleRecord()
	dir := filepath.Join(t.TempDir(), pageDirName("Acme", "Shop"))
	require.NoError(t, WriteWiki(dir, rec))
	assert.Equal(t, "acme-shop", filepath.Base(dir))

	checkout, err := os.ReadFile(filepath.Join(dir, "checkout.md"))
	require.NoError(t, err)
	assert.Contains(t, string(checkout), "# Checkout\n\n## Overview")
	assert.NotContains(t, string(checkout), fallbackNotice)

	search, err := os.ReadFile(filepath.Join(dir, "search.md"))
	require.NoError(t, err)
	assert.Contains(t, string(search), fallbackNotice)

	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "- [Checkout](checkout.md): Pays for orders. (2 citations)")
	assert.Contains(t, string(index), "Commit `abc123`")

	raw, err := os.ReadFile(filepath.Join(dir, "result.json"))
	require.NoError(t, err)
	var decoded wiki.AnalyzeCacheRecord
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "abc123", decoded.HeadSHA)
	assert.Len(t, decoded.Result.WikiPages, 2)
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortSHA("0123456789abcdef"))
	assert.Equal(t, "local", shortSHA("local"))
}

// Cached records carry no run report, so totals come from the pages.
func TestCountsFromRecord(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, 3, countCitations(rec))
	assert.Equal(t, 1, countFallbackPages(rec))
	assert.Zero(t, countCitations(&wiki.AnalyzeCacheRecord{}))
}
