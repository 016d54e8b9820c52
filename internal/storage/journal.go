package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal appends coordinator events to date-organized JSONL files, one
// stream per category. Writes are async and never block callers; a full
// buffer drops the record with a warning.
type Journal struct {
	baseDir    string
	bufferSize int
	maxSizeMB  int

	streams map[string]*journalStream
	mu      sync.RWMutex
}

// NewJournal creates a Journal rooted at baseDir.
func NewJournal(baseDir string, bufferSize, maxSizeMB int) *Journal {
	return &Journal{
		baseDir:    baseDir,
		bufferSize: bufferSize,
		maxSizeMB:  maxSizeMB,
		streams:    make(map[string]*journalStream),
	}
}

// Write queues one record on the category's stream.
func (j *Journal) Write(category string, record any) error {
	if err := validateCategory(category); err != nil {
		return err
	}
	return j.getStream(category).write(record)
}

func validateCategory(category string) error {
	if !keyRe.MatchString(category) {
		return fmt.Errorf("invalid journal category: %q", category)
	}
	return nil
}

func (j *Journal) getStream(category string) *journalStream {
	j.mu.RLock()
	if s, ok := j.streams[category]; ok {
		j.mu.RUnlock()
		return s
	}
	j.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()

	// Double-check after acquiring write lock.
	if s, ok := j.streams[category]; ok {
		return s
	}

	s := newJournalStream(j.baseDir, category, j.bufferSize, j.maxSizeMB)
	j.streams[category] = s
	slog.Debug("opened journal stream", "category", category)
	return s
}

// Close flushes and closes all streams, returning the last error seen.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var lastErr error
	for category, s := range j.streams {
		if err := s.close(); err != nil {
			slog.Error("failed to close journal stream", "category", category, "error", err)
			lastErr = err
		}
	}
	j.streams = make(map[string]*journalStream)
	return lastErr
}

// journalStream handles async writing of JSON lines for one category.
type journalStream struct {
	baseDir   string
	category  string
	maxSizeMB int

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup

	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

func newJournalStream(baseDir, category string, bufferSize, maxSizeMB int) *journalStream {
	s := &journalStream{
		baseDir:   baseDir,
		category:  category,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s
}

func (s *journalStream) write(record any) error {
	select {
	case s.writeCh <- record:
		return nil
	case <-s.done:
		return fmt.Errorf("journal stream %s is closed", s.category)
	default:
		slog.Warn("journal buffer full, dropping record", "category", s.category)
		return fmt.Errorf("buffer full")
	}
}

func (s *journalStream) close() error {
	close(s.done)

	// Drain remaining items with timeout.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-s.writeCh:
			s.writeRecord(record)
		case <-timeout:
			slog.Warn("journal close timeout, some records may be lost", "category", s.category)
			goto done
		default:
			goto done
		}
	}

done:
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logger != nil {
		return s.logger.Close()
	}
	return nil
}

func (s *journalStream) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case record := <-s.writeCh:
			s.writeRecord(record)
		case <-s.done:
			return
		}
	}
}

func (s *journalStream) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to marshal journal record", "category", s.category, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != s.currentDate || s.logger == nil {
		s.rotateForDate(currentDate)
	}
	if s.logger == nil {
		// rotateForDate could not create the date directory; the record is
		// dropped and the next write retries the rotation.
		return
	}

	if _, err := s.logger.Write(append(data, '\n')); err != nil {
		slog.Error("failed to write journal record", "category", s.category, "error", err)
	}
}

func (s *journalStream) rotateForDate(date string) {
	if s.logger != nil {
		s.logger.Close()
		s.logger = nil
	}

	dir := filepath.Join(s.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("failed to create journal directory", "dir", dir, "error", err)
		return
	}

	s.logger = &lumberjack.Logger{
		Filename:   filepath.Join(dir, s.category+".jsonl"),
		MaxSize:    s.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}
	s.currentDate = date
}
