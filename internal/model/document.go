package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DocType is the document class assigned by the external classifier.
type DocType string

const (
	DocTypeCapitalAccountStatement DocType = "capital_account_statement"
	DocTypeQuarterlyReport         DocType = "quarterly_report"
	DocTypeCapitalCallNotice       DocType = "capital_call_notice"
	DocTypeDistributionNotice      DocType = "distribution_notice"
)

// Table is one table cell grid from the external layout parser.
type Table struct {
	Page  int        `json:"page"`
	BBox  [4]float64 `json:"bbox"`
	Cells [][]string `json:"cells"`
}

// ParsedDocument is the engine's input: raw text plus table grids for one
// document, produced by the external parser/classifier.
type ParsedDocument struct {
	DocID      string    `json:"doc_id"`
	DocType    DocType   `json:"doc_type"`
	FundID     string    `json:"fund_id"`
	InvestorID string    `json:"investor_id,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	AsOfDate   time.Time `json:"as_of_date,omitzero"`
	Text       string    `json:"text"`
	Tables     []Table   `json:"tables"`
	Pages      int       `json:"pages"`
}

// ContentHash returns the idempotency key for the document: a SHA-256 over
// doc type, text and every table cell. Identical content hashes identically
// regardless of doc_id, so a duplicate submission can be detected upstream.
func (d *ParsedDocument) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(d.DocType))
	h.Write([]byte{0})
	h.Write([]byte(d.Text))
	for _, t := range d.Tables {
		for _, row := range t.Cells {
			h.Write([]byte{0})
			h.Write([]byte(strings.Join(row, "\x1f")))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
