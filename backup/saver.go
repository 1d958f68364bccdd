package backup

import (
	"os"
	"sync"
)

// Saver appends records to a single backup file, fsyncing after every
// write so that a later acknowledgement means the record is durable before
// any corresponding outgoing action is allowed to fire. Modeled on
// retributionStore's append-only file handling: O_APPEND|O_CREATE, no
// truncation, no in-place updates.
type Saver struct {
	mu   sync.Mutex
	file *os.File
}

// NewSaver opens (or creates) the backup file at path for appending.
func NewSaver(path string) (*Saver, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, ErrWriteFailed(err)
	}
	return &Saver{file: f}, nil
}

// Append writes rec to the log and fsyncs before returning. A failure here
// is fatal to the owning task per the write contract: the caller must not
// emit the corresponding durable-consequence action.
func (s *Saver) Append(rec Record) error {
	enc, err := rec.EncodeToBytes()
	if err != nil {
		return ErrWriteFailed(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(enc); err != nil {
		return ErrWriteFailed(err)
	}
	if err := s.file.Sync(); err != nil {
		return ErrWriteFailed(err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
