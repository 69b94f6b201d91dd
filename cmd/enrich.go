package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bizcrawl/internal/enrich"
	"github.com/sells-group/bizcrawl/internal/normalize"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <website>",
	Short: "Harvest contacts from one business website",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		origin, ok := normalize.Origin(args[0])
		if !ok {
			return eris.Errorf("enrich: %q is not an http(s) URL", args[0])
		}
		if policy, _ := cmd.Flags().GetString("stop"); policy != "" {
			if _, err := enrich.ParseStopPolicy(policy); err != nil {
				return err
			}
			cfg.Enrich.StopPolicy = policy
		}

		fetcher, err := newFetcher()
		if err != nil {
			return err
		}
		enr, err := newEnricher(fetcher)
		if err != nil {
			return err
		}

		res := enr.Enrich(ctx, origin)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "enrich: write result")
	},
}

func init() {
	enrichCmd.Flags().String("stop", "", "stop policy: email, email_and_phone or never (default from config)")
	rootCmd.AddCommand(enrichCmd)
}
