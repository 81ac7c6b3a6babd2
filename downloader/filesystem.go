package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Filesystem caches downloads in a JSON file, so that they survive
// restarts. Replaying a recorded realtime feed against a schedule
// from the command line is the main use.
type Filesystem struct {
	Path string

	TimeNow func() time.Time

	entries map[string]fsEntry
	logger  *slog.Logger
	mutex   sync.Mutex
}

// []byte fields are base64 in JSON.
type fsEntry struct {
	Body        []byte    `json:"body"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

func NewFilesystem(path string, logger *slog.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Filesystem{
		Path:    path,
		TimeNow: time.Now,
		entries: map[string]fsEntry{},
		logger:  logger.With("component", "downloader", "path", path),
	}

	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if err := json.Unmarshal(buf, &f.entries); err != nil {
		return nil, fmt.Errorf("decoding cache: %w", err)
	}

	f.logger.Debug("cache loaded", "entries", len(f.entries))
	return f, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if options.Cache {
		entry, found := f.entries[url]
		if found && f.TimeNow().Before(entry.RetrievedAt.Add(options.CacheTTL)) {
			f.logger.Debug("cache hit", "url", url)
			return entry.Body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		f.entries[url] = fsEntry{Body: body, RetrievedAt: f.TimeNow().UTC()}
		if err := f.save(); err != nil {
			return nil, fmt.Errorf("saving cache: %w", err)
		}
	}

	return body, nil
}

// Replaces the cache file atomically.
func (f *Filesystem) save() error {
	buf, err := json.Marshal(f.entries)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.Path)
}
