package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/moffa90/go-dfuse/bootloader"
	"github.com/moffa90/go-dfuse/history"
	"github.com/moffa90/go-dfuse/internal/config"
	"github.com/moffa90/go-dfuse/protocol"
	"github.com/moffa90/go-dfuse/storage"
	"github.com/moffa90/go-dfuse/transport"
)

// session is one opened device with its alternate setting selected.
type session struct {
	cfg     *config.Config
	conn    *transport.Conn
	dev     *bootloader.Device
	prog    *bootloader.Programmer
	profile bootloader.Profile
}

// loadConfig loads and validates the tool configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openSession opens the configured device, decodes the memory layout of the
// selected alternate and clears a leftover dfuERROR state.
func openSession(ctx context.Context, cfg *config.Config, progress bootloader.ProgressCallback) (*session, error) {
	vid, _ := cfg.Vendor()
	pid, _ := cfg.Product()

	conn, err := transport.Open(transport.Options{
		Vendor:         vid,
		Product:        pid,
		Config:         cfg.Cfg,
		Interface:      cfg.Intf,
		Alternate:      cfg.Alt,
		ControlTimeout: cfg.ControlTimeout,
	})
	if err != nil {
		return nil, err
	}

	opts := []bootloader.Option{
		bootloader.WithLogger(slog.Default()),
		bootloader.WithPollTimeout(cfg.PollTimeout),
	}
	if cfg.TransferSize > 0 {
		opts = append(opts, bootloader.WithTransferSize(cfg.TransferSize))
	}
	if progress != nil {
		opts = append(opts, bootloader.WithProgressCallback(progress))
	}
	dev := bootloader.NewDevice(conn, conn.InterfaceNumber(), opts...)

	profile := bootloader.Profile{Alternate: conn.Alternate()}
	if layout, ok := protocol.ParseMemoryLayout(conn.InterfaceName()); ok {
		profile.Layout = layout
	} else {
		slog.Warn("memory_layout_unknown", "descriptor", conn.InterfaceName())
	}

	status, err := dev.GetStatus(ctx)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to read device status")
	}
	if status.State == protocol.StateDfuError {
		slog.Info("device_error_cleared", "status", protocol.StatusName(status.Status))
		if err := dev.ClearStatus(ctx); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to clear device error")
		}
	}

	return &session{
		cfg:     cfg,
		conn:    conn,
		dev:     dev,
		prog:    bootloader.New(dev, profile),
		profile: profile,
	}, nil
}

func (s *session) Close() {
	if err := s.conn.Close(); err != nil {
		slog.Warn("device_close_failed", "error", err)
	}
}

// newStore returns the byte-buffer store for local and s3:// locations.
func newStore(cfg *config.Config) *storage.Store {
	return storage.New(storage.Options{
		Region:    cfg.S3Region,
		Anonymous: cfg.S3Anonymous,
	})
}

// journal wraps the optional operation history. A nil repository or a
// failing database never fails the device operation.
type journal struct {
	repo *history.Repository
}

func openJournal(cfg *config.Config) *journal {
	if cfg.HistoryDB == "" {
		return &journal{}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o755); err != nil {
		slog.Warn("history_unavailable", "db_path", cfg.HistoryDB, "error", err)
		return &journal{}
	}
	repo, err := history.NewRepository(cfg.HistoryDB)
	if err != nil {
		slog.Warn("history_unavailable", "db_path", cfg.HistoryDB, "error", err)
		return &journal{}
	}
	return &journal{repo: repo}
}

// begin starts a journal record for command on the session's device.
func (j *journal) begin(ctx context.Context, s *session, command, location string, address uint32) *history.Operation {
	op := &history.Operation{
		Command:   command,
		Vendor:    s.conn.Vendor(),
		Product:   s.conn.Product(),
		Alternate: s.conn.Alternate(),
		Location:  location,
		Address:   address,
	}
	if j.repo == nil {
		return op
	}
	if err := j.repo.Start(ctx, op); err != nil {
		slog.Warn("history_record_failed", "command", command, "error", err)
	}
	return op
}

// end records the outcome of op and passes opErr through.
func (j *journal) end(ctx context.Context, op *history.Operation, opErr error) error {
	if j.repo == nil || op.ID == 0 {
		return opErr
	}
	if err := j.repo.Finish(ctx, op, opErr); err != nil {
		slog.Warn("history_record_failed", "command", op.Command, "error", err)
	}
	return opErr
}

func (j *journal) Close() {
	if j.repo != nil {
		j.repo.Close()
	}
}

// parseAddress accepts decimal or 0x-prefixed addresses.
func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Errorf("invalid address %q", s)
	}
	return uint32(v), nil
}
