package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash_IgnoresDocID(t *testing.T) {
	a := &ParsedDocument{DocID: "doc-1", DocType: DocTypeQuarterlyReport, Text: "same text"}
	b := &ParsedDocument{DocID: "doc-2", DocType: DocTypeQuarterlyReport, Text: "same text"}
	assert.Equal(t, a.ContentHash(), b.ContentHash())
}

func TestContentHash_SensitiveToContent(t *testing.T) {
	base := &ParsedDocument{
		DocType: DocTypeCapitalAccountStatement,
		Text:    "statement",
		Tables:  []Table{{Cells: [][]string{{"Ending Balance", "100"}}}},
	}

	differentType := *base
	differentType.DocType = DocTypeQuarterlyReport
	assert.NotEqual(t, base.ContentHash(), differentType.ContentHash())

	differentCell := *base
	differentCell.Tables = []Table{{Cells: [][]string{{"Ending Balance", "101"}}}}
	assert.NotEqual(t, base.ContentHash(), differentCell.ContentHash())
}

func TestContentHash_CellBoundaries(t *testing.T) {
	// Shifting text between adjacent cells must change the hash.
	a := &ParsedDocument{Tables: []Table{{Cells: [][]string{{"ab", "c"}}}}}
	b := &ParsedDocument{Tables: []Table{{Cells: [][]string{{"a", "bc"}}}}}
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}
