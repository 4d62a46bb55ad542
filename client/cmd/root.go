package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager/installer"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/encryption"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/util"
)

const (
	logLevelFlag        = "log-level"
	logFileFlag         = "log-file"
	releaseBaseURLFlag  = "release-base-url"
	artifactNameFlag    = "artifact-name"
	apiKeyFileFlag      = "api-key-file"
	serviceLockFileFlag = "service-lock-file"
	targetVersionFlag   = "version"
)

var (
	logLevel        string
	logFile         string
	releaseBaseURL  string
	artifactName    string
	apiKeyFile      string
	serviceLockFile string
	targetVersion   string

	rootCmd = &cobra.Command{
		Use:          "gpgui-helper",
		Short:        "GlobalProtect GUI helper",
		Long:         "Downloads, verifies and hands GUI updates to the GlobalProtect service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.SetFlagsFromEnvVars(cmd.Root())
			util.SetFlagsFromEnvVars(cmd)
			return util.InitLog(logLevel, logFile)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, logLevelFlag, "l", "info", "sets the log level")
	rootCmd.PersistentFlags().StringVar(&logFile, logFileFlag, "console", "sets the log path. If console is specified the log will be output to stderr")
	rootCmd.PersistentFlags().StringVar(&releaseBaseURL, releaseBaseURLFlag, updatemanager.DefaultReleaseBaseURL, "base URL of the release repository")
	rootCmd.PersistentFlags().StringVar(&artifactName, artifactNameFlag, updatemanager.DefaultArtifactName, "base name of the release artifact")
	rootCmd.PersistentFlags().StringVar(&apiKeyFile, apiKeyFileFlag, "", "file holding the base64 encoded API key shared with the service")
	rootCmd.PersistentFlags().StringVar(&serviceLockFile, serviceLockFileFlag, installer.DefaultLockFile, "lock file written by the service with its API port")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetupCloseHandler handles SIGTERM signal and exits with success
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(termCh)
		select {
		case <-ctx.Done():
		case <-termCh:
			log.Info("shutdown signal received")
		}
		cancel()
	}()
}

func newGuiUpdater(emitter updatemanager.Emitter) (*updatemanager.GuiUpdater, error) {
	if targetVersion == "" {
		return nil, fmt.Errorf("--%s is required", targetVersionFlag)
	}

	key, err := readAPIKey(apiKeyFile)
	if err != nil {
		return nil, err
	}

	crypto, err := encryption.New(key)
	if err != nil {
		return nil, err
	}

	client := installer.New(crypto, installer.NewLockFileResolver(serviceLockFile))
	source := updatemanager.ReleaseSource{
		BaseURL:      releaseBaseURL,
		ArtifactName: artifactName,
	}

	return updatemanager.NewGuiUpdater(targetVersion, updatemanager.NewProgressNotifier(emitter), client,
		updatemanager.WithReleaseSource(source)), nil
}

func readAPIKey(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--%s is required", apiKeyFileFlag)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API key: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode API key: %w", err)
	}
	return key, nil
}
