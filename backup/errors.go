package backup

import "github.com/go-errors/errors"

// ErrUnknownRecordKind is returned by DecodeRecord for a corrupt or
// foreign-version kind tag. Like every decode failure during Load, this is
// treated as fatal corruption.
var ErrUnknownRecordKind = errors.New("backup: unknown record kind")

// Errors returned by Load when the log fails verification. Each wraps
// go-errors/errors so the daemon's fatal-error path gets a stack trace,
// matching the teacher's use of that package for its own "this should
// never happen" failures.
var (
	ErrCorruptLog      = errors.New("backup: corrupt or truncated record")
	ErrWrongSession    = errors.New("backup: unit belongs to a different session")
	ErrMissingParent   = errors.New("backup: unit references a parent not yet seen in the log")
	ErrDuplicateWriter = errors.New("backup: consensus reports a higher round than this log knows (possible duplicate key)")
)

// ErrWriteFailed wraps a failed append or flush; per the error handling
// design this is fatal to the owning task.
func ErrWriteFailed(cause error) error {
	return errors.WrapPrefix(cause, "backup: write failed", 0)
}
