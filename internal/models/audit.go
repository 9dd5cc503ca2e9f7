package models

import "time"

// Audit actions recorded for archive writes.
const (
	AuditActionItemCreate = "ITEM_CREATE"
	AuditActionItemUpdate = "ITEM_UPDATE"
	AuditActionItemDelete = "ITEM_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ItemChange describes a committed archive write, queued for follow-up work.
type ItemChange struct {
	Action           string    `json:"action"`
	ItemID           string    `json:"item_id"`
	Slug             string    `json:"slug"`
	Category         string    `json:"category"`
	PreviousCategory string    `json:"previous_category,omitempty"`
	ActorID          string    `json:"actor_id"`
	At               time.Time `json:"at"`
}
