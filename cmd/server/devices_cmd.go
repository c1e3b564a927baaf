package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/db"
	"github.com/openmined/vaultsync/internal/server"
	"github.com/openmined/vaultsync/internal/server/devices"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and manage registered devices",
	}
	cmd.PersistentFlags().StringP("data-dir", "d", server.DefaultDataDir, "directory holding the vault")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeDB, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			list, err := registry.Describe(cmd.Context())
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			return printDevices(cmd, list, output)
		},
	}
	list.Flags().StringP("output", "o", "table", "output format: table, yaml or json")

	remove := &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Forget a device so it no longer holds back tombstone purging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeDB, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := registry.Remove(cmd.Context(), args[0]); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", red.Render("ERROR"), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed device %s\n", green.Render("OK"), cyan.Render(args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func openRegistry(cmd *cobra.Command) (*devices.Registry, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, nil, err
	}
	cmd.SilenceUsage = true

	sqldb, err := db.NewSqliteDB(db.WithPath(cfg.DBPath))
	if err != nil {
		return nil, nil, err
	}
	registry, err := devices.NewRegistry(sqldb)
	if err != nil {
		sqldb.Close()
		return nil, nil, err
	}
	return registry, func() { sqldb.Close() }, nil
}

func printDevices(cmd *cobra.Command, list []devices.Device, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		return yaml.NewEncoder(out).Encode(list)
	case "table", "":
		if len(list) == 0 {
			fmt.Fprintln(out, "no devices registered")
			return nil
		}
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(gray).
			Headers("DEVICE", "LAST ONLINE", "REGISTERED").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row != table.HeaderRow && col == 0 {
					return cell.Inherit(cyan)
				}
				return cell
			})
		for _, d := range list {
			t.Row(d.ID, since(d.LastOnline), since(d.CreatedAt))
		}
		_, err := fmt.Fprintln(out, t.Render())
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func since(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return humanize.Time(time.UnixMilli(ms))
}
