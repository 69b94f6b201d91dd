package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored business records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sourceURL, _ := cmd.Flags().GetString("source-url")
		hasEmail, _ := cmd.Flags().GetBool("has-email")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("format")

		recs, err := st.ListRecords(ctx, store.RecordFilter{
			SourceURL: sourceURL,
			HasEmail:  hasEmail,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		if len(recs) == 0 && format == "table" {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}
		return writeRecords(os.Stdout, recs, format)
	},
}

func writeRecords(out io.Writer, recs []model.BusinessRecord, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(recs), "records: encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close() //nolint:errcheck
		return eris.Wrap(enc.Encode(recs), "records: encode yaml")
	case "table", "":
		formatRecordsTable(out, recs)
		return nil
	default:
		return eris.Errorf("records: unknown format %q (json, yaml or table)", format)
	}
}

func formatRecordsTable(out io.Writer, recs []model.BusinessRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPHONE\tRATING\tWEBSITE\tEMAILS\tSOURCE")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t-------\t------\t------")

	for _, r := range recs {
		rating := ""
		if r.Rating != nil {
			rating = fmt.Sprintf("%.1f", *r.Rating)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(model.Deref(r.Name), 30),
			model.Deref(r.Phone),
			rating,
			model.Deref(r.Website),
			strings.Join(r.Emails, ","),
			r.SourceURL,
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	f := recordsCmd.Flags()
	f.String("source-url", "", "only the record for this detail page")
	f.Bool("has-email", false, "only records with at least one email")
	f.Int("limit", 50, "maximum records (0 = all)")
	f.Int("offset", 0, "records to skip")
	f.String("format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(recordsCmd)
}
