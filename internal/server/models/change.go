package models

import "time"

// Change is the persisted form of one CRDT cell: the latest value ever
// written to (vault, table, row, column) together with its HLC. A nil
// EncryptedValue is a tombstone; a nil ColumnName addresses the whole row.
type Change struct {
	ID             string
	UserID         string
	VaultID        string
	TableName      string
	RowPKs         string
	ColumnName     *string
	HLCTimestamp   string
	DeviceID       *string
	EncryptedValue *string
	Nonce          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChangeSubmission is one element of a push request before it is merged.
// Batch fields tie the submission to an atomic multi-part batch.
type ChangeSubmission struct {
	TableName      string
	RowPKs         string
	ColumnName     *string
	HLCTimestamp   string
	DeviceID       *string
	EncryptedValue *string
	Nonce          *string
	BatchID        *string
	BatchSeq       *int
	BatchTotal     *int
}

// PushResult summarizes an accepted push: rows touched, the greatest HLC
// in the batch, and the server wall-clock at commit time.
type PushResult struct {
	Count           int
	LastHLC         string
	ServerTimestamp time.Time
}

// PullCursor is the composite cursor carried across pull calls. The zero
// value means "from the beginning".
type PullCursor struct {
	AfterUpdatedAt time.Time
	AfterTableName string
	AfterRowPKs    string
}

// IsZero reports whether the cursor is unset.
func (c PullCursor) IsZero() bool {
	return c.AfterUpdatedAt.IsZero() && c.AfterTableName == "" && c.AfterRowPKs == ""
}

// PullPage is one page of a cursor pull: every column of every row whose
// latest update orders after the cursor, plus the next cursor position.
type PullPage struct {
	Changes       []*Change
	HasMore       bool
	LastUpdatedAt time.Time
	LastTableName string
	LastRowPKs    string
}
