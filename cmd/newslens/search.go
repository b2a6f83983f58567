package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/newslens/config"
	"github.com/mohammad-safakhou/newslens/internal/aggregator"
	"github.com/mohammad-safakhou/newslens/internal/logging"
	srv "github.com/mohammad-safakhou/newslens/internal/server"
)

func searchCMD(cfgPath *string) *cobra.Command {
	var sessionID string
	var limit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.General.LogLevel, cfg.General.LogFormat)
			app, err := srv.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Aggregator.Search(cmd.Context(), aggregator.SearchRequest{
				Query:     strings.Join(args, " "),
				SessionID: sessionID,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(srv.NewSearchResponse(res))
		},
	}
	search.Flags().StringVar(&sessionID, "session", "", "existing session id to add results to")
	search.Flags().IntVar(&limit, "limit", 0, "items per source (0 = configured)")
	return search
}
