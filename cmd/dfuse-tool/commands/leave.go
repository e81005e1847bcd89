package commands

import (
	"github.com/spf13/cobra"
)

var leaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Leave DFU mode and start the application",
	Args:  cobra.NoArgs,
	RunE:  runLeave,
}

func init() {
	rootCmd.AddCommand(leaveCmd)
}

func runLeave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	j := openJournal(cfg)
	defer j.Close()

	op := j.begin(ctx, s, "leave", "", 0)
	return j.end(ctx, op, s.prog.Leave(ctx))
}
