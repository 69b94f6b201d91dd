package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bizcrawl/internal/model"
	"github.com/sells-group/bizcrawl/internal/resolve"
)

type resolveOutput struct {
	Record model.BusinessRecord `json:"record"`
	Report resolve.Report       `json:"report"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <file-or-url>",
	Short: "Resolve a record from a saved detail page or a live URL",
	Long:  "Prints the resolved record together with the strategy that produced each field, or why none did.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		target := args[0]
		sourceURL, _ := cmd.Flags().GetString("source-url")

		var page *model.RenderedPage
		if html, err := os.ReadFile(target); err == nil {
			if sourceURL == "" {
				sourceURL = "file://" + target
			}
			page = &model.RenderedPage{URL: sourceURL, HTML: string(html)}
		} else {
			if !os.IsNotExist(err) {
				return eris.Wrapf(err, "resolve: read %s", target)
			}
			fetcher, err := newFetcher()
			if err != nil {
				return err
			}
			engine, err := newEngine(fetcher)
			if err != nil {
				return err
			}
			defer engine.Close() //nolint:errcheck

			page, err = engine.Render(ctx, target, cfg.RenderOptions())
			if err != nil {
				return eris.Wrapf(err, "resolve: render %s", target)
			}
			if sourceURL == "" {
				sourceURL = target
			}
		}

		rec, rep := resolve.New().ResolveWithReport(page, sourceURL)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(resolveOutput{Record: rec, Report: rep}), "resolve: write result")
	},
}

func init() {
	resolveCmd.Flags().String("source-url", "", "page URL recorded as source_url and used to resolve relative links")
	rootCmd.AddCommand(resolveCmd)
}
