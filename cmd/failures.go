package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/store"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List work items that failed during crawls",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		label, _ := cmd.Flags().GetString("label")
		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		failures, err := st.ListFailures(ctx, store.FailureFilter{
			Label:     model.Label(label),
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "failures list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(failures), "failures: encode json")
		}
		if len(failures) == 0 {
			fmt.Fprintln(os.Stderr, "No failures found.")
			return nil
		}
		formatFailures(os.Stdout, failures)
		return nil
	},
}

func formatFailures(out io.Writer, failures []model.Failure) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CREATED\tLABEL\tTYPE\tURL\tERROR\tSCREENSHOT")
	_, _ = fmt.Fprintln(w, "-------\t-----\t----\t---\t-----\t----------")

	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.CreatedAt.Format("2006-01-02 15:04"),
			f.Label,
			f.ErrorType,
			f.URL,
			truncate(f.Error, 60),
			f.Screenshot,
		)
	}
	_ = w.Flush()
}

func init() {
	f := failuresCmd.Flags()
	f.String("label", "", "filter by label (SEARCH or DETAIL)")
	f.String("error-type", "", "filter by error type (transient or permanent)")
	f.Int("limit", 50, "maximum failures (0 = all)")
	f.Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(failuresCmd)
}
