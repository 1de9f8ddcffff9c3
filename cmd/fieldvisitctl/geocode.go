package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newGeocodeBackfillCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "geocode-backfill",
		Short: "Fill missing client address fields from the geocoding service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.Config.Geocode.BatchSize
			}
			report, err := a.Geocode.Backfill(cmd.Context(), limit)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum clients to geocode (default GEOCODE_BATCH_SIZE)")
	return cmd
}
