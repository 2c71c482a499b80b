// Package entity holds the conversation-memory domain types. Message
// and snapshot contents are stored encrypted; plaintext exists only in
// flight.
package entity

import (
	"time"
)

// Message roles stored by the gateway.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Partition groups conversations under a caller-supplied external ID,
// forming a tenant-local forest. Partitions are materialised on first
// reference.
type Partition struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	ExternalID string  `json:"external_id"`
	ParentID   *string `json:"parent_id,omitempty"`
	Title      *string `json:"title,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a memory thread, unique per (tenant, external ID).
type Conversation struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	ExternalID  string  `json:"external_id"`
	AgentID     *string `json:"agent_id,omitempty"`
	PartitionID *string `json:"partition_id,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Message is one encrypted conversation turn. Rows are append-only and
// ordered by CreatedAt.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`

	Ciphertext []byte `json:"-"`
	IV         []byte `json:"-"`

	TokenEstimate int `json:"token_estimate"`

	// SnapshotID links a message to the snapshot that archived it,
	// when one has.
	SnapshotID *string `json:"snapshot_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is an encrypted summary of everything before its CreatedAt.
// The newest snapshot of a conversation is its active one; earlier
// messages survive but are elided from context loads.
type Snapshot struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	Ciphertext []byte `json:"-"`
	IV         []byte `json:"-"`

	// ArchivedCount is the number of messages folded into the summary.
	ArchivedCount int `json:"archived_count"`

	CreatedAt time.Time `json:"created_at"`
}
