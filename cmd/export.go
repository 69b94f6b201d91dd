package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bizcrawl/internal/export"
	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx|file.csv>",
	Short: "Export stored records to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hasEmail, _ := cmd.Flags().GetBool("has-email")
		recs, err := st.ListRecords(ctx, store.RecordFilter{HasEmail: hasEmail})
		if err != nil {
			return eris.Wrap(err, "export: list records")
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx":
			err = export.SaveXLSX(path, recs)
		case ".csv":
			err = writeCSVFile(path, recs)
		default:
			return eris.Errorf("export: unsupported file type %q (use .xlsx or .csv)", filepath.Ext(path))
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete", zap.String("path", path), zap.Int("records", len(recs)))
		return nil
	},
}

func writeCSVFile(path string, recs []model.BusinessRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	if err := export.WriteCSV(f, recs); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

func init() {
	exportCmd.Flags().Bool("has-email", false, "only records with at least one email")
	rootCmd.AddCommand(exportCmd)
}
