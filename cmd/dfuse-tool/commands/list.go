package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-dfuse/protocol"
	"github.com/moffa90/go-dfuse/transport"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available DfuSe interfaces",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	alts, err := s.conn.Alternates()
	if err != nil {
		return errors.Wrap(err, "failed to list alternate settings")
	}

	out := cmd.OutOrStdout()
	for _, alt := range alts {
		printAlternate(out, s.conn.Vendor(), s.conn.Product(), alt)
	}
	return nil
}

func printAlternate(w io.Writer, vendor, product uint16, alt transport.Alternate) {
	fmt.Fprintf(w, "Device: [%04x:%04x] %s\n", vendor, product, alt)

	mem, ok := protocol.ParseMemoryLayout(alt.Name)
	if !ok {
		fmt.Fprintf(w, "  memory layout unknown\n\n")
		return
	}
	fmt.Fprintf(w, "  memory with %d pages %d bytes, start address %08x\n",
		mem.PageCount, mem.PageSize, mem.Address)
	fmt.Fprintf(w, "  device state: %s\n\n", accessString(mem))
}

func accessString(mem *protocol.MemoryLayout) string {
	var states []string
	if mem.Readable {
		states = append(states, "Readable")
	}
	if mem.Writable {
		states = append(states, "Writable")
	}
	if mem.Erasable {
		states = append(states, "Erasable")
	}
	if len(states) == 0 {
		return "none"
	}
	return strings.Join(states, ", ")
}
