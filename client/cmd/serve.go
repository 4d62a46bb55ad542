package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/server"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/ui/event"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/util"
)

var (
	listenAddr     string
	allowedOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serves the update API and event stream for the GUI",
	RunE: func(cmd *cobra.Command, args []string) error {
		hub := event.NewHub(allowedOrigins...)
		updater, err := newGuiUpdater(hub)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		ctx = util.WithComponent(ctx, "status-server")
		return server.New(updater, hub, allowedOrigins).ListenAndServe(ctx, listenAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&targetVersion, targetVersionFlag, "", "GUI version to install")
	serveCmd.Flags().StringVar(&listenAddr, "listen", server.DefaultListenAddr, "address of the local update API")
	serveCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", []string{"tauri://localhost", "http://localhost:*"}, "origins allowed to use the API")
}
