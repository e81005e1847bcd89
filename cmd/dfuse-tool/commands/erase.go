package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/protocol"
)

var eraseCmd = &cobra.Command{
	Use:   "erase [ADDRESS [ENDADDR]]",
	Short: "Erase all or from ADDRESS to ENDADDR or end of memory",
	Long: `Erases the pages from ADDRESS up to ENDADDR (exclusive). ADDRESS
defaults to the start of the memory and ENDADDR to its end. With --all the
whole device is erased with a single mass erase command.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runErase,
}

var eraseAll bool

func init() {
	eraseCmd.Flags().BoolVar(&eraseAll, "all", false, "Mass erase the whole device")
	rootCmd.AddCommand(eraseCmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

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
	if mem != nil && !mem.Erasable {
		fmt.Fprintln(out, "Device not erasable, exits now!")
		return nil
	}

	j := openJournal(cfg)
	defer j.Close()

	if eraseAll {
		fmt.Fprintln(out, "Mass erasing. Please wait this might be long ...")
		op := j.begin(ctx, s, "mass-erase", "", 0)
		if err := j.end(ctx, op, s.prog.MassErase(ctx)); err != nil {
			return err
		}
		fmt.Fprintln(out, "Done !")
		return nil
	}

	start, end, err := eraseRange(mem, args)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Erasing. Please wait this might be long ...")
	op := j.begin(ctx, s, "erase", "", start)
	op.Bytes = int(end - start)
	return j.end(ctx, op, s.prog.Erase(ctx, start, end))
}

// eraseRange resolves the ADDRESS and ENDADDR arguments against mem.
// With an unknown layout, ADDRESS is required and ENDADDR defaults to 1024.
func eraseRange(mem *protocol.MemoryLayout, args []string) (uint32, uint32, error) {
	var start, end uint32
	if mem != nil {
		start, end = mem.Address, mem.End()
	} else {
		end = protocol.DefaultTransferSize
	}

	if len(args) > 0 {
		v, err := parseAddress(args[0])
		if err != nil {
			return 0, 0, err
		}
		start = v
	} else if mem == nil {
		return 0, 0, fmt.Errorf("memory layout unknown, give the start ADDRESS")
	}

	if len(args) > 1 {
		v, err := parseAddress(args[1])
		if err != nil {
			return 0, 0, err
		}
		end = v
	}

	if end <= start {
		return 0, 0, fmt.Errorf("end address 0x%08X must be above start address 0x%08X", end, start)
	}
	return start, end, nil
}
