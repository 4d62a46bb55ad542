package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the helper version",
	Run: func(cmd *cobra.Command, args []string) {
		build := version.Current()
		channel := "release"
		if build.IsSnapshot() {
			channel = "snapshot"
		}
		cmd.Printf("%s (%s, %s)\n", build.Version, channel, build.Arch)
	},
}
