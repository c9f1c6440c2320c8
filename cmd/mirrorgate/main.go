/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// mirrorgate is the FIX mirror-trading gateway: it maintains a drop-copy
// acceptor session on the primary account plus order-entry initiator
// sessions on the shadow venues, and replicates primary executions onto the
// shadow accounts.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/syntalon/longvin-trading-sub000/internal/config"
	"github.com/syntalon/longvin-trading-sub000/internal/persistence"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "mirrorgate",
		Short:         "FIX mirror-trading gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "application config file (YAML)")

	root.AddCommand(runCmd(), locateStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mirrorgate:", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gateway and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg, newLogger())
		},
	}
}

func locateStatusCmd() *cobra.Command {
	limit := 20
	cmd := &cobra.Command{
		Use:   "locate-status",
		Short: "Show recent short-locate request transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.SqlitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			requests, err := db.RecentLocateRequests(limit)
			if err != nil {
				return err
			}
			if len(requests) == 0 {
				fmt.Println("no locate requests recorded")
				return nil
			}
			for _, r := range requests {
				fmt.Printf("%-36s %-12s %-8s qty=%s approved=%s order=%s %s\n",
					r.QuoteReqID, r.Status, r.Symbol,
					r.Quantity.String(), r.ApprovedQty.String(), r.PrimaryOrderID,
					r.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum transitions to show")
	return cmd
}
