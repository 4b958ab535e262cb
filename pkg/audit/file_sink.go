package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const currentFileName = "audit.log"

// FileSinkConfig configures the file sink
type FileSinkConfig struct {
	Dir      string // directory holding audit.log and rotated files
	Rotate   bool
	MaxSize  int64 // bytes before rotation (default 100MB)
	MaxFiles int   // rotated files to keep (default 10)
}

// DefaultFileSinkConfig returns default configuration
func DefaultFileSinkConfig() FileSinkConfig {
	return FileSinkConfig{
		Dir:      "/var/log/membership/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// FileSink appends entries as JSON lines
type FileSink struct {
	cfg FileSinkConfig

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileSink creates the directory if needed and opens the current file
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("audit directory is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100 * 1024 * 1024
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	s := &FileSink{cfg: cfg}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) currentPath() string {
	return filepath.Join(s.cfg.Dir, currentFileName)
}

func (s *FileSink) open() error {
	if s.cfg.Rotate {
		if info, err := os.Stat(s.currentPath()); err == nil && info.Size() >= s.cfg.MaxSize {
			if err := s.rotate(); err != nil {
				return err
			}
		}
	}

	file, err := os.OpenFile(s.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	s.file = file
	s.encoder = json.NewEncoder(file)
	return nil
}

func (s *FileSink) rotate() error {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	rotated := filepath.Join(s.cfg.Dir, fmt.Sprintf("audit-%s.log", stamp))
	if err := os.Rename(s.currentPath(), rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return s.cleanup()
}

// cleanup keeps the newest MaxFiles rotated files. Names sort by timestamp.
func (s *FileSink) cleanup() error {
	files, err := s.RotatedFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.cfg.MaxFiles {
		return nil
	}
	var errs []error
	for _, f := range files[:len(files)-s.cfg.MaxFiles] {
		if err := os.Remove(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RotatedFiles lists rotated files, oldest first
func (s *FileSink) RotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.cfg.Dir, "audit-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *FileSink) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("audit file sink is closed")
	}
	if s.cfg.Rotate {
		if info, err := s.file.Stat(); err == nil && info.Size() >= s.cfg.MaxSize {
			if err := s.open(); err != nil {
				return err
			}
		}
	}
	if err := s.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadEntries decodes up to count entries from the current file (all when count <= 0)
func (s *FileSink) ReadEntries(count int) ([]*Entry, error) {
	file, err := os.Open(s.currentPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var entries []*Entry
	dec := json.NewDecoder(file)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, &e)
		if count > 0 && len(entries) >= count {
			break
		}
	}
	return entries, nil
}
