package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/bootloader"
	"github.com/moffa90/go-dfuse/history"
	"github.com/moffa90/go-dfuse/protocol"
	"github.com/moffa90/go-dfuse/storage"
)

var readCmd = &cobra.Command{
	Use:   "read SAVEFILE [PAGES]",
	Short: "Read device memory",
	Long: `Uploads PAGES pages (default: the whole memory) from the selected
memory and saves them to SAVEFILE, a local path or s3://bucket/key. If the
device reports an error the data read so far is saved to SAVEFILE.error.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRead,
}

var readSetAddress bool

func init() {
	readCmd.Flags().BoolVar(&readSetAddress, "set-address", false, "Point the device at the memory start before reading")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
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
	if mem != nil && !mem.Readable {
		fmt.Fprintln(out, "Device not readable, exits now!")
		return nil
	}

	maxBytes, err := readSize(mem, args[1:])
	if err != nil {
		return err
	}

	prog := bootloader.New(s.dev, s.profile, bootloader.WithUploadAddress(readSetAddress))

	j := openJournal(cfg)
	defer j.Close()

	var address uint32
	if mem != nil {
		address = mem.Address
	}
	op := j.begin(ctx, s, "read", location, address)

	fmt.Fprintln(out, "Copying data from DFU device")
	data, uploadErr := prog.Upload(ctx, maxBytes)
	op.Bytes = len(data)
	op.SHA256 = history.Digest(data)

	if err := saveUpload(ctx, newStore(cfg), location, data, uploadErr); err != nil {
		return j.end(ctx, op, err)
	}
	fmt.Fprintf(out, "Done, read %d bytes\n", len(data))
	return j.end(ctx, op, nil)
}

// saveUpload writes data to location, or to location.error when the upload
// failed. The .error file is written even when nothing was read.
func saveUpload(ctx context.Context, store *storage.Store, location string, data []byte, uploadErr error) error {
	if uploadErr != nil {
		errFile := location + ".error"
		if err := store.WriteAll(ctx, errFile, data); err != nil {
			return errors.Wrapf(uploadErr, "could not save retrieved data to %s: %v", errFile, err)
		}
		return errors.Wrapf(uploadErr, "saved retrieved data to %s", errFile)
	}

	if err := store.WriteAll(ctx, location, data); err != nil {
		return errors.Wrapf(err, "failed to save %s", location)
	}
	return nil
}

// readSize returns the number of bytes to read: the page size times PAGES
// when given, else the whole memory.
func readSize(mem *protocol.MemoryLayout, args []string) (int, error) {
	pageSize := protocol.DefaultTransferSize
	if mem != nil {
		pageSize = mem.PageSize
	}

	if len(args) > 0 {
		pages, err := strconv.ParseUint(args[0], 0, 31)
		if err != nil || pages == 0 {
			return 0, errors.Errorf("invalid page count %q", args[0])
		}
		return pageSize * int(pages), nil
	}

	if mem == nil {
		return 0, errors.New("memory layout unknown, give the number of PAGES to read")
	}
	return mem.Size(), nil
}
