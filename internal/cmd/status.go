package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/palette-dev/palette/internal/daemon"
	"github.com/palette-dev/palette/internal/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon state and file locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("%spalette status%s\n\n", colorBold, colorReset)

		if ipc.DaemonRunning(cfg, paths) {
			pid, _, _ := daemon.ReadHeldPID(paths.LockFile())
			fmt.Printf("  daemon:   %srunning%s (PID %d)\n", colorGreen, colorReset, pid)
		} else {
			fmt.Printf("  daemon:   %snot running%s\n", colorDim, colorReset)
		}

		socket := cfg.Daemon.SocketPath
		if socket == "" {
			socket = paths.SocketFile()
		}
		fmt.Printf("  socket:   %s\n", socket)
		fmt.Printf("  config:   %s%s\n", paths.ConfigFile(), fileMarker(paths.ConfigFile()))
		fmt.Printf("  database: %s%s\n", paths.DatabaseFile(), fileMarker(paths.DatabaseFile()))
		fmt.Printf("  log:      %s\n", paths.LogFile())
		return nil
	},
}

func fileMarker(path string) string {
	if _, err := os.Stat(path); err != nil {
		return " " + colorDim + "(missing)" + colorReset
	}
	return ""
}
