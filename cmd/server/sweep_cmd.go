package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/vaultsync/internal/server"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			// a running server holds the lock and sweeps on its own schedule
			lock := server.NewDataDirLock(cfg.DataDir)
			if err := lock.Lock(); err != nil {
				return err
			}
			defer lock.Unlock()

			svc, err := server.NewServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Shutdown(cmd.Context())

			report, err := svc.Sweeper.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := yaml.NewEncoder(out).Encode(report); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s pruned %d versions (%s), purged %d tombstones\n",
				green.Render("OK"), report.VersionsPruned, humanize.Bytes(uint64(report.BytesPruned)), report.TombstonesPurged)
			return nil
		},
	}
	cmd.Flags().StringP("data-dir", "d", server.DefaultDataDir, "directory holding the vault")
	return cmd
}
