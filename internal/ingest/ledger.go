// Package ingest loads cashflow ledger workbooks into the store.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/olitsch123/FOReportingv2/internal/extract"
	"github.com/olitsch123/FOReportingv2/internal/model"
)

// LedgerOptions configures the workbook reader.
type LedgerOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	Currency   string // fallback when the sheet has no currency column
}

// headerAliases maps normalized header cells to canonical column names.
var headerAliases = map[string]string{
	"fund":        "fund_id",
	"fund id":     "fund_id",
	"fund_id":     "fund_id",
	"investor":    "investor_id",
	"investor id": "investor_id",
	"investor_id": "investor_id",
	"lp":          "investor_id",
	"date":        "date",
	"flow date":   "date",
	"value date":  "date",
	"type":        "type",
	"flow type":   "type",
	"amount":      "amount",
	"value":       "amount",
	"currency":    "currency",
	"ccy":         "currency",
}

// flowAliases maps sheet spellings of the transaction type to ledger types.
var flowAliases = map[string]model.FlowType{
	"call":            model.FlowCall,
	"capital call":    model.FlowCall,
	"drawdown":        model.FlowCall,
	"contribution":    model.FlowCall,
	"dist":            model.FlowDist,
	"distribution":    model.FlowDist,
	"fee":             model.FlowFee,
	"management fee":  model.FlowFee,
	"tax":             model.FlowTax,
	"withholding tax": model.FlowTax,
	"other":           model.FlowOther,
	"equalisation":    model.FlowOther,
	"equalization":    model.FlowOther,
}

// Inserter is the slice of the store the importer needs.
type Inserter interface {
	InsertCashflows(ctx context.Context, flows []model.CashflowRecord) (int64, error)
}

// Importer reads cashflow workbooks and bulk-inserts the ledger rows.
type Importer struct {
	store Inserter
}

func NewImporter(store Inserter) *Importer {
	return &Importer{store: store}
}

// Import reads the workbook at path and inserts every ledger row. A row
// with an unknown flow type or an unparseable amount aborts the whole
// import; partial ledgers would silently skew every downstream KPI.
func (im *Importer) Import(ctx context.Context, path string, opts LedgerOptions) (int64, error) {
	flows, err := ReadLedger(path, opts)
	if err != nil {
		return 0, err
	}
	n, err := im.store.InsertCashflows(ctx, flows)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: insert cashflows")
	}
	zap.L().Info("ingest: ledger imported",
		zap.String("path", path),
		zap.Int64("rows", n))
	return n, nil
}

// ReadLedger parses a cashflow workbook into ledger records.
func ReadLedger(path string, opts LedgerOptions) ([]model.CashflowRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("ingest: workbook has no rows")
	}

	columns, err := mapHeader(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var flows []model.CashflowRecord
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		rec, err := parseRow(cells, columns, opts, now)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: row %d", i+2)
		}
		flows = append(flows, *rec)
	}
	return flows, nil
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int)
	for i, cell := range header {
		if name, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell))]; ok {
			columns[name] = i
		}
	}
	for _, required := range []string{"fund_id", "date", "type", "amount"} {
		if _, ok := columns[required]; !ok {
			return nil, eris.Errorf("ingest: header is missing a %s column", required)
		}
	}
	return columns, nil
}

func parseRow(cells []string, columns map[string]int, opts LedgerOptions, now time.Time) (*model.CashflowRecord, error) {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	flowType, ok := flowAliases[strings.ToLower(cell("type"))]
	if !ok {
		flowType = model.FlowType(strings.ToUpper(cell("type")))
	}
	if !model.ValidFlowType(flowType) {
		return nil, eris.Errorf("unknown flow type %q", cell("type"))
	}

	date, err := extract.ParseDate(cell("date"))
	if err != nil {
		return nil, eris.Wrapf(err, "parse date %q", cell("date"))
	}
	amount, err := extract.ParseAmount(cell("amount"), language.Und)
	if err != nil {
		return nil, eris.Wrapf(err, "parse amount %q", cell("amount"))
	}

	currency := cell("currency")
	if currency == "" {
		currency = opts.Currency
	}

	return &model.CashflowRecord{
		ID:         uuid.New().String(),
		FundID:     cell("fund_id"),
		InvestorID: cell("investor_id"),
		FlowDate:   date,
		Type:       flowType,
		Amount:     amount,
		Currency:   currency,
		CreatedAt:  now,
	}, nil
}

func getSheet(f *xlsx.File, opts LedgerOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
