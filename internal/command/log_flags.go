package command

import (
	"flag"
	"io"
	"log/slog"

	"github.com/joeycumines/cvansible/internal/config"
	"github.com/joeycumines/cvansible/internal/logging"
)

// logFlags are the logging flags shared by commands that talk to the server
// or touch session files. Unset flags fall back to the config file.
type logFlags struct {
	level  string
	file   string
	format string
}

func (f *logFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.level, "log-level", "", "Log level: debug, info, warn or error (default from config, else warn)")
	fs.StringVar(&f.file, "log-file", "", "Write logs to this file instead of stderr, with rotation")
	fs.StringVar(&f.format, "log-format", "", "Log format: text, json or auto")
}

func (f *logFlags) options() logging.Options {
	return logging.Options{Level: f.level, File: f.file, Format: f.format}
}

func (f *logFlags) setup(cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	return logging.Setup(f.options(), cfg, stderr)
}
