package store

import (
	"fmt"
	"strings"
)

// ErrValidation indicates input that failed keyword, size, or quality
// validation. Hint tells the caller how to fix the input.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrValidation struct {
	Field string
	Hint  string
	cause error
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Hint)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Hint)
}

func (e *ErrValidation) Unwrap() error { return e.cause }

// ErrConflict indicates a create or reassign targeting a keyword set that
// already identifies another memory.
type ErrConflict struct {
	Stem string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("memory %q already exists: reassign or update it instead of creating a duplicate", e.Stem)
}

// ErrNotFound indicates a lookup for a keyword set no memory is stored
// under. Nearest carries the closest existing stems, best match first.
type ErrNotFound struct {
	Stem    string
	Nearest []string
}

func (e *ErrNotFound) Error() string {
	if len(e.Nearest) == 0 {
		return fmt.Sprintf("no memory stored under %q: list memories to see existing keyword sets", e.Stem)
	}
	return fmt.Sprintf("no memory stored under %q: closest existing sets are %s", e.Stem, strings.Join(e.Nearest, ", "))
}

// ErrVersionMismatch indicates a stale version token on a guarded write.
// The caller must re-read the memory to get the current version and retry.
type ErrVersionMismatch struct {
	Supplied string
	Current  string
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("version mismatch: supplied %q but current is %q; re-read the memory and retry with the current version", e.Supplied, e.Current)
}

// ErrFragment indicates an update anchor that was not found in the content
// or was found more than once. Count is the exact number of occurrences.
type ErrFragment struct {
	Anchor string
	Count  int
}

func (e *ErrFragment) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("fragment %q not found in content: re-read the memory and copy the fragment exactly", truncateAnchor(e.Anchor))
	}
	return fmt.Sprintf("fragment %q appears %d times in content: provide a longer fragment that occurs exactly once", truncateAnchor(e.Anchor), e.Count)
}

// ErrInfrastructure wraps a disk or lock failure underneath a store
// operation. Persisted state is never left inconsistent by one.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrInfrastructure struct {
	Op    string
	cause error
}

func (e *ErrInfrastructure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.cause)
}

func (e *ErrInfrastructure) Unwrap() error { return e.cause }

func infraErr(op string, err error) error {
	return &ErrInfrastructure{Op: op, cause: err}
}

func truncateAnchor(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
