package company

import "time"

// ChangeType categorises a changelog entry.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
	ChangeUpdated ChangeType = "updated"
)

// FieldDiff records one field's old and new value.
type FieldDiff struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeLog is one audit entry describing a mutation of a company or one of
// its nested objects.
type ChangeLog struct {
	ID         string               `json:"id"`
	ChangeType ChangeType           `json:"change_type"`
	ObjectType string               `json:"object_type"` // company, director, shareholder
	ObjectPID  string               `json:"object_pid"`
	Changes    map[string]FieldDiff `json:"changes,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}
