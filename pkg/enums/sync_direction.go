package enums

import "fmt"

// SyncDirection selects which replication legs a sync run performs.
type SyncDirection string

const (
	SyncDirectionPull SyncDirection = "pull"
	SyncDirectionPush SyncDirection = "push"
	SyncDirectionBoth SyncDirection = "both"
)

var validSyncDirections = []SyncDirection{
	SyncDirectionPull,
	SyncDirectionPush,
	SyncDirectionBoth,
}

// String implements fmt.Stringer.
func (d SyncDirection) String() string {
	return string(d)
}

// IsValid reports whether the value is a known SyncDirection.
func (d SyncDirection) IsValid() bool {
	for _, candidate := range validSyncDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseSyncDirection converts raw input into a SyncDirection.
func ParseSyncDirection(value string) (SyncDirection, error) {
	for _, candidate := range validSyncDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync direction %q", value)
}
