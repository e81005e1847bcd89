package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/bootloader"
	"github.com/moffa90/go-dfuse/dfuse"
	"github.com/moffa90/go-dfuse/history"
)

var flashCmd = &cobra.Command{
	Use:   "flash FILE",
	Short: "Flash a DfuSe file",
	Long: `Programs every image of FILE whose alternate setting matches --alt.
FILE is a .dfu container on disk or at s3://bucket/key. The vendor and
product id of the file must match the device unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

// eraseSpan is shared by flash and flash-bin.
var eraseSpan bool

func init() {
	flashCmd.Flags().BoolVar(&eraseSpan, "erase-span", false, "Erase every page an image covers, not only its first page")
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	location := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := newStore(cfg).ReadAll(ctx, location)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", location)
	}
	fw, err := dfuse.ParseBytes(raw)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", location)
	}

	s, err := openSession(ctx, cfg, progressPrinter(out))
	if err != nil {
		return err
	}
	defer s.Close()

	if mem := s.profile.Layout; mem != nil && !mem.Writable {
		fmt.Fprintln(out, "Device not writable, exits now!")
		return nil
	}

	if !cfg.Force {
		if err := bootloader.CheckDevice(fw, s.conn.Vendor(), s.conn.Product()); err != nil {
			return errors.Wrap(err, "run with --force to bypass")
		}
	}

	for _, t := range fw.TargetsFor(byte(s.profile.Alternate)) {
		fmt.Fprintf(out, "Found target %q\n", t.Name)
		for i, e := range t.Elements {
			fmt.Fprintf(out, "  image %d at 0x%08X, %d bytes\n", i, e.Address, len(e.Data))
		}
	}

	j := openJournal(cfg)
	defer j.Close()

	op := j.begin(ctx, s, "flash", location, 0)
	op.SHA256 = history.Digest(raw)

	fmt.Fprintln(out, "Flashing. Please wait this might be long ...")
	prog := bootloader.New(s.dev, s.profile, bootloader.WithSpanErase(eraseSpan))
	err = prog.Flash(ctx, fw)

	var noTarget *bootloader.NoMatchingTargetError
	if errors.As(err, &noTarget) {
		err = errors.Wrap(err, "check the --alt setting")
	}
	if err == nil {
		for _, t := range fw.TargetsFor(byte(s.profile.Alternate)) {
			op.Bytes += t.Size()
		}
	}
	return j.end(ctx, op, err)
}
