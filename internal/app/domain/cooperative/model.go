package cooperative

import "time"

// Type is the tier of a cooperative in the federation hierarchy.
type Type string

const (
	TypeTertiary  Type = "tertiary"
	TypeSecondary Type = "secondary"
	TypePrimary   Type = "primary"
)

// Level returns the depth of the tier: tertiary 1, secondary 2, primary 3.
// Unknown types return 0.
func (t Type) Level() int {
	switch t {
	case TypeTertiary:
		return 1
	case TypeSecondary:
		return 2
	case TypePrimary:
		return 3
	}
	return 0
}

// Valid reports whether t is a known tier.
func (t Type) Valid() bool { return t.Level() > 0 }

// CanParent reports whether a cooperative of type t may be the direct parent
// of one of type child.
func (t Type) CanParent(child Type) bool {
	return t.Valid() && child.Valid() && child.Level() == t.Level()+1
}

// Status of a cooperative record.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Cooperative is a registered cooperative society.
type Cooperative struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	RegistrationNo string     `json:"registration_no"`
	Type           Type       `json:"type"`
	ParentID       string     `json:"parent_id,omitempty"`
	Region         string     `json:"region,omitempty"`
	Address        string     `json:"address,omitempty"`
	ContactPerson  string     `json:"contact_person,omitempty"`
	ContactEmail   string     `json:"contact_email,omitempty"`
	ContactPhone   string     `json:"contact_phone,omitempty"`
	Status         Status     `json:"status"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Member is an officer or member of a cooperative.
type Member struct {
	ID            string    `json:"id"`
	CooperativeID string    `json:"cooperative_id"`
	FullName      string    `json:"full_name"`
	Position      string    `json:"position,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Filter narrows cooperative listings. Zero values match everything.
type Filter struct {
	Type     Type
	Status   Status
	ParentID string
	Search   string
}
