package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anggasct/exflow"
	"github.com/anggasct/exflow/pkg/sarif"
)

type revalidateSummary struct {
	Server  string                       `json:"server"`
	Results []*exflow.RevalidationResult `json:"results"`
}

func newRevalidateCmd() *cobra.Command {
	var (
		reportPath string
		server     string
	)

	cmd := &cobra.Command{
		Use:                   "revalidate --report FILE [--server HOST]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Revalidate approved exceptions against a SARIF rescan",
		Long: `Reads a SARIF report and checks every approved vulnerability exception of the
	scanned hosts. Exceptions whose covered findings escalated, or whose host gained a more
	severe finding, are voided. Results without a host property are attributed to --server.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("exflow-revalidate")

			report, err := sarif.ReadReport(reportPath)
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}
			byHost := sarif.Findings(report, server)
			hosts := sarif.Hosts(byHost)
			if len(hosts) == 0 {
				return fmt.Errorf("report names no host; pass --server")
			}

			a, err := buildApp(cmd.Context(), AppConfig, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var summaries []revalidateSummary
			for _, host := range hosts {
				results, err := a.engine.RevalidateServer(cmd.Context(), host, byHost[host])
				if err != nil {
					return fmt.Errorf("revalidation of %s failed: %w", host, err)
				}
				voided := 0
				for _, r := range results {
					if r.Voided {
						voided++
					}
				}
				logger.Info("revalidated", "server", host, "findings", len(byHost[host]),
					"exceptions", len(results), "voided", voided)
				summaries = append(summaries, revalidateSummary{Server: host, Results: results})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "path to the SARIF report")
	cmd.Flags().StringVar(&server, "server", "", "host for results that do not name one")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}
