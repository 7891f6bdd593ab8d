package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process <parsed-document.json>...",
	Short: "Extract, validate and persist parsed fund documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		library, err := loadLibrary()
		if err != nil {
			return err
		}

		p := pipeline.New(cfg, st, library, buildExtractors(library))

		for _, path := range args {
			doc, err := readParsedDocument(path)
			if err != nil {
				return err
			}

			rec, err := p.Process(ctx, doc)
			if err != nil {
				return eris.Wrapf(err, "process %s", path)
			}

			zap.L().Info("document processed",
				zap.String("path", path),
				zap.String("record_id", rec.ID),
				zap.Int("version", rec.Version),
				zap.Float64("confidence", rec.Confidence),
				zap.Bool("requires_review", rec.RequiresReview),
			)
		}
		return nil
	},
}

func readParsedDocument(path string) (*model.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var doc model.ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if doc.DocID == "" {
		return nil, eris.Errorf("%s: missing doc_id", path)
	}
	if doc.DocType == "" {
		return nil, eris.Errorf("%s: missing doc_type", path)
	}
	return &doc, nil
}

func init() {
	rootCmd.AddCommand(processCmd)
}
