package checklist

import "time"

// Checklist is a document requirement attached to a program.
type Checklist struct {
	ID          string    `json:"id"`
	ProgramID   string    `json:"program_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Upload is a document submitted against a checklist item for one coop
// program enrollment.
type Upload struct {
	ID            string    `json:"id"`
	CoopProgramID string    `json:"coop_program_id"`
	ChecklistID   string    `json:"checklist_id"`
	FileName      string    `json:"file_name"`
	ContentType   string    `json:"content_type"`
	Size          int64     `json:"size"`
	SHA256        string    `json:"sha256"`
	StoragePath   string    `json:"-"`
	UploadedBy    string    `json:"uploaded_by,omitempty"`
	UploadedAt    time.Time `json:"uploaded_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Completion summarises required-document progress for an enrollment.
type Completion struct {
	Required  int         `json:"required"`
	Completed int         `json:"completed"`
	Percent   int         `json:"percent"`
	Missing   []Checklist `json:"missing"`
}

// Complete reports whether every required item has an upload.
func (c Completion) Complete() bool { return c.Completed >= c.Required }
