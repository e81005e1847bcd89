package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/bootloader"
	"github.com/moffa90/go-dfuse/history"
)

var flashBinCmd = &cobra.Command{
	Use:   "flash-bin FILE",
	Short: "Flash an ordinary binary file",
	Long: `Programs the raw contents of FILE at the start address of the selected
memory. The interface string of the alternate setting must describe a
writable memory.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlashBin,
}

func init() {
	flashBinCmd.Flags().BoolVar(&eraseSpan, "erase-span", false, "Erase every page the image covers, not only its first page")
	rootCmd.AddCommand(flashBinCmd)
}

func runFlashBin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	location := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, progressPrinter(out))
	if err != nil {
		return err
	}
	defer s.Close()

	mem := s.profile.Layout
	if mem == nil {
		return errors.New("USB interface description could not be parsed")
	}
	if !mem.Writable {
		return errors.Errorf("device memory %q is not writable", mem.Name)
	}

	data, err := newStore(cfg).ReadAll(ctx, location)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", location)
	}
	if len(data) == 0 {
		return errors.Errorf("file %s is empty", location)
	}

	j := openJournal(cfg)
	defer j.Close()

	op := j.begin(ctx, s, "flash-bin", location, mem.Address)
	op.SHA256 = history.Digest(data)

	fmt.Fprintf(out, "Flashing %d bytes at 0x%08X ...\n", len(data), mem.Address)
	prog := bootloader.New(s.dev, s.profile, bootloader.WithSpanErase(eraseSpan))
	err = prog.FlashBinary(ctx, mem.Address, data)
	if err == nil {
		op.Bytes = len(data)
	}
	return j.end(ctx, op, err)
}
