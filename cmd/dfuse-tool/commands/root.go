package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moffa90/go-dfuse/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "dfuse-tool",
	Short: "DfuSe flashing utility for STM32 devices",
	Long: `Lists, erases, flashes and reads STM32 devices running the ST DfuSe
USB bootloader. Firmware can be a .dfu container or a raw binary, read
from a local path or from s3://bucket/key.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
		return nil
	},
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.String("vid", config.DefaultVID, "Device's USB vendor id")
	flags.String("pid", config.DefaultPID, "Device's USB product id")
	flags.Int("cfg", 0, "Device's configuration index")
	flags.Int("intf", 0, "Device's interface number")
	flags.Int("alt", 0, "Device's alternate setting number")
	flags.BoolP("force", "f", false, "Bypass sanity checks")
	flags.Duration("poll-timeout", config.DefaultPollTimeout, "Maximum time to wait for a busy device")
	flags.Duration("control-timeout", config.DefaultControlTimeout, "Timeout of each USB control transfer")
	flags.Int("transfer-size", 0, "Block size for downloads and uploads (0 uses the page size)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("history-db", config.DefaultHistoryDB, "SQLite operation journal path (empty disables it)")
	flags.String("s3-region", "", "AWS region for s3:// locations")
	flags.Bool("s3-anonymous", false, "Access s3:// locations without credentials")

	for _, name := range []string{
		"vid", "pid", "cfg", "intf", "alt", "force",
		"poll-timeout", "control-timeout", "transfer-size",
		"log-level", "history-db", "s3-region", "s3-anonymous",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}
