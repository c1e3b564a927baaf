package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/vaultsync/internal/adminclient"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running server for its status and devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.Password == "" {
				return fmt.Errorf("auth `password` is required to log in")
			}
			cmd.SilenceUsage = true

			url, _ := cmd.Flags().GetString("url")
			peerID, _ := cmd.Flags().GetString("peer-id")

			client, err := adminclient.New(url)
			if err != nil {
				return err
			}
			if err := client.Login(cmd.Context(), peerID, cfg.Auth.Password); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", red.Render("ERROR"), err)
				return err
			}

			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			list, err := client.Devices(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s at %s\n", green.Render("OK"), st.Version.String(), cyan.Render(url))
			fmt.Fprintf(out, "connections: %d, devices: %d, disk free: %s of %s\n",
				st.Connections, len(list.Devices), humanize.Bytes(st.Disk.Free), humanize.Bytes(st.Disk.Total))

			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				return yaml.NewEncoder(out).Encode(st)
			}
			return nil
		},
	}
	cmd.Flags().StringP("url", "u", "http://127.0.0.1:3000", "server base url")
	cmd.Flags().String("peer-id", "vaultsync-admin", "peer id to log in as")
	cmd.Flags().BoolP("verbose", "v", false, "print the full status document")
	return cmd
}
