package spmi

import (
	"context"
	"log/slog"
	"strconv"
)

// levelTrace is used for raw FIFO word logging.
const levelTrace slog.Level = slog.LevelDebug - 1

func (d *Dev) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Dev) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Dev) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Dev) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Dev) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger == nil || !d.logger.Enabled(context.Background(), level) {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func hex32(u uint32) string {
	return "0x" + strconv.FormatUint(uint64(u), 16)
}
