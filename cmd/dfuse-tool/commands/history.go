package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent device operations",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of operations to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errors.New("history is disabled, set --history-db")
	}

	if _, err := os.Stat(cfg.HistoryDB); os.IsNotExist(err) {
		printHistory(cmd.OutOrStdout(), nil)
		return nil
	}

	repo, err := history.NewRepository(cfg.HistoryDB)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	ops, err := repo.List(cmd.Context(), historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	printHistory(cmd.OutOrStdout(), ops)
	return nil
}

func printHistory(w io.Writer, ops []*history.Operation) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations found")
		return
	}

	fmt.Fprintf(w, "%-5s %-20s %-10s %-11s %-4s %-10s %-9s %s\n",
		"ID", "STARTED", "COMMAND", "DEVICE", "ALT", "BYTES", "STATUS", "LOCATION")
	for _, op := range ops {
		location := op.Location
		if location == "" {
			location = "-"
		}
		fmt.Fprintf(w, "%-5d %-20s %-10s %04x:%04x  %-4d %-10d %-9s %s\n",
			op.ID, op.StartedAt, op.Command, op.Vendor, op.Product,
			op.Alternate, op.Bytes, op.Status, location)
		if op.ErrorMessage != "" {
			fmt.Fprintf(w, "      error: %s\n", op.ErrorMessage)
		}
	}
}
