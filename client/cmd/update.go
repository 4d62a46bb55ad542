package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager"
)

var errUpdateFailed = errors.New("update failed, see the log for details")

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "downloads, verifies and installs a GUI release",
	Long:  "Runs a single update attempt and prints the UI events as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		emitter := &consoleEmitter{out: cmd.OutOrStdout()}
		updater, err := newGuiUpdater(emitter)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		updater.Update(ctx)

		if emitter.failed() {
			return errUpdateFailed
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&targetVersion, targetVersionFlag, "", "GUI version to install")
}

// consoleEmitter prints every event as a JSON line
type consoleEmitter struct {
	mu     sync.Mutex
	out    io.Writer
	errors int
}

func (c *consoleEmitter) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if event == updatemanager.EventUpdateError {
		c.errors++
	}

	return json.NewEncoder(c.out).Encode(struct {
		Event   string `json:"event"`
		Payload any    `json:"payload"`
	}{Event: event, Payload: payload})
}

func (c *consoleEmitter) failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors > 0
}
