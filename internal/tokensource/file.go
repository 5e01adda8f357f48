// Package tokensource reads chat user tokens from a file kept up to date
// by an external process, and watches it for rotations.
package tokensource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexjbarnes/chat-sync/internal/auth"
	"github.com/fsnotify/fsnotify"
)

// File is a token stored as a JWT in a text file.
type File struct {
	path   string
	logger *slog.Logger
}

// NewFile returns a File for path.
func NewFile(path string, logger *slog.Logger) *File {
	return &File{path: filepath.Clean(path), logger: logger}
}

// Read parses the current token.
func (f *File) Read() (auth.Token, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return auth.Token{}, fmt.Errorf("reading token file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return auth.Token{}, fmt.Errorf("token file %s is empty", f.path)
	}

	return auth.ParseToken(raw)
}

// Provider returns a token provider that re-reads the file on every
// call, so an expired token picks up whatever was written since.
func (f *File) Provider() auth.TokenProvider {
	return func(ctx context.Context) (auth.Token, error) {
		if err := ctx.Err(); err != nil {
			return auth.Token{}, err
		}

		return f.Read()
	}
}

// Watch calls onChange with every new token written to the file. The
// parent directory is watched so atomic rename-into-place writes are
// seen. It blocks until the context is cancelled.
func (f *File) Watch(ctx context.Context, onChange func(auth.Token) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watching token directory: %w", err)
	}

	var last string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if filepath.Clean(event.Name) != f.path {
				continue
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			tok, err := f.Read()
			if err != nil {
				// Writers may truncate before writing; the next event
				// carries the full token.
				f.logger.Debug("token file not readable yet", slog.String("error", err.Error()))
				continue
			}

			if tok.Raw == last {
				continue
			}

			last = tok.Raw

			if err := onChange(tok); err != nil {
				f.logger.Warn("applying rotated token",
					slog.String("user_id", tok.UserID),
					slog.String("error", err.Error()),
				)

				continue
			}

			f.logger.Info("token rotated", slog.String("user_id", tok.UserID))

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			f.logger.Warn("token watcher error", slog.String("error", err.Error()))
		}
	}
}
