package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/dfuse"
)

var packCmd = &cobra.Command{
	Use:   "pack OUT BIN...",
	Short: "Build a DfuSe file from raw binaries",
	Long: `Packs one or more raw binaries into a DfuSe container with a single
target for --alt. Each BIN is placed at the matching --address, in order.
The suffix carries --vid and --pid. OUT and BIN may be s3://bucket/key.`,
	Example: `  dfuse-tool pack app.dfu boot.bin app.bin --address 0x08000000 --address 0x08004000`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runPack,
}

var (
	packAddresses  []string
	packTargetName string
)

func init() {
	packCmd.Flags().StringArrayVar(&packAddresses, "address", nil, "Load address of each BIN (repeat per BIN)")
	packCmd.Flags().StringVar(&packTargetName, "target-name", "", "Target name stored in the file")
	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out, bins := args[0], args[1:]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	vid, _ := cfg.Vendor()
	pid, _ := cfg.Product()

	store := newStore(cfg)
	images := make([][]byte, len(bins))
	for i, bin := range bins {
		data, err := store.ReadAll(ctx, bin)
		if err != nil {
			return errors.Wrapf(err, "failed to load %s", bin)
		}
		images[i] = data
	}

	fw, err := buildContainer(vid, pid, byte(cfg.Alt), packTargetName, packAddresses, images)
	if err != nil {
		return err
	}
	enc, err := dfuse.Encode(fw)
	if err != nil {
		return errors.Wrap(err, "failed to encode container")
	}
	if err := store.WriteAll(ctx, out, enc); err != nil {
		return errors.Wrapf(err, "failed to save %s", out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d images, %d bytes\n", out, len(images), len(enc))
	return nil
}

// buildContainer places images[i] at addresses[i] in a single target.
func buildContainer(vid, pid uint16, alt byte, name string, addresses []string, images [][]byte) (*dfuse.File, error) {
	if len(addresses) != len(images) {
		return nil, errors.Errorf("got %d --address values for %d binaries", len(addresses), len(images))
	}
	if len(name) > dfuse.TargetNameSize {
		return nil, errors.Errorf("target name is longer than %d bytes", dfuse.TargetNameSize)
	}

	target := &dfuse.Target{AlternateSetting: alt, Name: name}
	for i, data := range images {
		addr, err := parseAddress(addresses[i])
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.Errorf("binary %d is empty", i)
		}
		target.Elements = append(target.Elements, &dfuse.Element{Address: addr, Data: data})
	}

	return &dfuse.File{
		DeviceInfo: dfuse.DeviceInfo{Device: dfuse.AnyID, Product: pid, Vendor: vid},
		Targets:    []*dfuse.Target{target},
	}, nil
}
