package logging

import (
	"io"
	"log/slog"
	"os"
)

// Switch turns diagnostic output on and off at runtime. Off still lets
// warnings and errors through.
type Switch struct {
	level slog.LevelVar
}

func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.SetEnabled(enabled)
	return s
}

func (s *Switch) SetEnabled(enabled bool) {
	if enabled {
		s.level.Set(slog.LevelDebug)
	} else {
		s.level.Set(slog.LevelWarn)
	}
}

func (s *Switch) Enabled() bool {
	return s.level.Level() <= slog.LevelDebug
}

func (s *Switch) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &s.level}))
}

// Configure installs a stdout text logger controlled by the returned switch
// as the slog default.
func Configure(enabled bool) (*slog.Logger, *Switch) {
	sw := NewSwitch(enabled)
	logger := sw.Logger(os.Stdout)
	slog.SetDefault(logger)
	return logger, sw
}
