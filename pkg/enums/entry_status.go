package enums

import "fmt"

// EntryStatus tracks the publish lifecycle of a content entry.
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "draft"
	EntryStatusScheduled EntryStatus = "scheduled"
	EntryStatusPublished EntryStatus = "published"
)

var validEntryStatuses = []EntryStatus{
	EntryStatusDraft,
	EntryStatusScheduled,
	EntryStatusPublished,
}

// String implements fmt.Stringer.
func (s EntryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s EntryStatus) IsValid() bool {
	for _, candidate := range validEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEntryStatus converts raw input into an EntryStatus.
func ParseEntryStatus(value string) (EntryStatus, error) {
	for _, candidate := range validEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entry status %q", value)
}
