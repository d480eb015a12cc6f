package daemon

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// SetupLogging configures the standard logger. With a file configured,
// output goes to both stderr and the file; the returned closer closes it.
func SetupLogging(cfg LoggingConfig) (io.Closer, error) {
	flags := log.LstdFlags
	if cfg.Level == "debug" {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
