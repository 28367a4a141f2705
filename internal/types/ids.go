package types

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionID identifies one change cycle through the engine.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering keeps execution logs sortable by wall clock.
type ExecutionID string

// SnapshotID identifies one persisted form-state snapshot.
type SnapshotID string

// NewExecutionID generates a UUIDv7 execution identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.Must(uuid.NewV7()).String())
}

// NewSnapshotID generates a UUIDv7 snapshot identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
func NewSnapshotID() SnapshotID {
	return SnapshotID(uuid.Must(uuid.NewV7()).String())
}

// ParseExecutionID validates and converts a string to ExecutionID.
func ParseExecutionID(s string) (ExecutionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ExecutionID(s), nil
}

// ParseSnapshotID validates and converts a string to SnapshotID.
func ParseSnapshotID(s string) (SnapshotID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return SnapshotID(s), nil
}

// ExecutionIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func ExecutionIDTime(id ExecutionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
