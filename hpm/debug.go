package hpm

import (
	"context"
	"log/slog"
)

func (d *Dev) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Dev) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Dev) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}

func (d *Dev) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Dev) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger == nil || !d.logger.Enabled(context.Background(), level) {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func regAttr(reg uint8) slog.Attr {
	return slog.Int("reg", int(reg))
}
