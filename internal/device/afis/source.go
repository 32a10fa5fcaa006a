package afis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SampleSource feeds scanned fingerprint images to the software device, one
// per finger placement.
type SampleSource interface {
	// Next blocks until an image is available or the context is done.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// DirSource treats a directory as the sensor: each new image file dropped
// into it is one finger placement. Files already present are consumed oldest
// first before the watcher is consulted, so a prepared batch of scans works
// without timing games.
type DirSource struct {
	dir     string
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	consumed map[string]struct{}
}

func NewDirSource(dir string) (*DirSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sample directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create directory watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch sample directory: %w", err)
	}
	return &DirSource{
		dir:      dir,
		watcher:  watcher,
		consumed: make(map[string]struct{}),
	}, nil
}

func (s *DirSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if data, ok := s.takePending(); ok {
			return data, nil
		}
		select {
		case ev, open := <-s.watcher.Events:
			if !open {
				return nil, fmt.Errorf("sample source closed")
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			// Create events can fire before the writer finished; give the
			// file a moment then re-scan the directory rather than trusting
			// the event path alone.
			time.Sleep(50 * time.Millisecond)
		case err, open := <-s.watcher.Errors:
			if !open {
				return nil, fmt.Errorf("sample source closed")
			}
			return nil, fmt.Errorf("sample source watch error: %w", err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// takePending reads the oldest unconsumed image file in the directory, if any.
func (s *DirSource) takePending() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, false
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var pending []candidate
	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if _, done := s.consumed[path]; done {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		pending = append(pending, candidate{path: path, modTime: info.ModTime()})
	}
	if len(pending) == 0 {
		return nil, false
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].modTime.Equal(pending[j].modTime) {
			return pending[i].path < pending[j].path
		}
		return pending[i].modTime.Before(pending[j].modTime)
	})

	oldest := pending[0]
	data, err := os.ReadFile(oldest.path)
	if err != nil || len(data) == 0 {
		// Likely still being written; leave it for the next pass.
		return nil, false
	}
	s.consumed[oldest.path] = struct{}{}
	return data, true
}

func (s *DirSource) Close() error {
	return s.watcher.Close()
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".bmp", ".png", ".jpg", ".jpeg", ".wsq", ".pgm":
		return true
	}
	return false
}

// StaticSource replays a fixed list of images. Used for scripted captures and
// in tests.
type StaticSource struct {
	mu     sync.Mutex
	frames [][]byte
}

func NewStaticSource(frames ...[]byte) *StaticSource {
	return &StaticSource{frames: frames}
}

func (s *StaticSource) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

func (s *StaticSource) Close() error { return nil }
