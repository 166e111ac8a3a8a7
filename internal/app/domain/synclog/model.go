package synclog

import (
	"encoding/json"
	"time"
)

// Operation is the kind of row mutation recorded.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Direction of a sync pass.
type Direction string

const (
	Push Direction = "push"
	Pull Direction = "pull"
)

// Entry is an append-only record of a row mutation.
type Entry struct {
	ID         string          `json:"id"`
	TableName  string          `json:"table_name"`
	RowID      string          `json:"row_id"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Origin     string          `json:"origin"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// State is the persisted high-water mark of one table and direction.
type State struct {
	TableName     string    `json:"table_name"`
	Direction     Direction `json:"direction"`
	HighWaterMark time.Time `json:"high_water_mark"`
	UpdatedAt     time.Time `json:"updated_at"`
}
