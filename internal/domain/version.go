package domain

import (
	"fmt"
	"time"
)

// VersionLayout is the wire format of updated_at.
const VersionLayout = time.RFC3339Nano

// Timestamp normalizes a clock reading to what the store keeps: UTC with
// microsecond precision, so a value round-tripped through Postgres compares equal.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatVersion renders updated_at the way clients must echo it back.
func FormatVersion(t time.Time) string {
	return Timestamp(t).Format(VersionLayout)
}

// CheckVersion is the optimistic update guard. The client value must be present,
// parse, and be exactly the stored fingerprint as FormatVersion renders it. A
// value naming the same instant in another layout or offset is still a conflict.
func CheckVersion(stored time.Time, client string) error {
	if client == "" {
		return fmt.Errorf("%w: field 'updated_at' is required for update", ErrConflict)
	}
	if _, err := time.Parse(VersionLayout, client); err != nil {
		return fmt.Errorf("%w: invalid 'updated_at' format", ErrConflict)
	}
	if client != FormatVersion(stored) {
		return fmt.Errorf("%w: task was modified by another user", ErrConflict)
	}
	return nil
}
