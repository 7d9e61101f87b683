package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JSONLSink appends one JSON object per event to a file, creating parent
// directories on first write. Records are flushed immediately so the file
// can be tailed.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer

	warned bool
}

// NewJSONLSink returns nil when path is blank.
func NewJSONLSink(path string) *JSONLSink {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &JSONLSink{path: path}
}

func (s *JSONLSink) Emit(ev Event) {
	if s == nil {
		return
	}
	if err := s.write(ev); err != nil {
		s.mu.Lock()
		if !s.warned {
			log.Printf("[warn] events file %s: %v", s.path, err)
			s.warned = true
		}
		s.mu.Unlock()
	}
}

func (s *JSONLSink) write(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		s.file = f
		s.w = bufio.NewWriterSize(f, 64*1024)
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.w != nil {
		firstErr = s.w.Flush()
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil && !errors.Is(err, os.ErrClosed) {
			firstErr = err
		}
	}
	s.w = nil
	s.file = nil
	return firstErr
}
