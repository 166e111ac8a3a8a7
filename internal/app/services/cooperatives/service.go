package cooperatives

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
)

// maxDepth bounds ancestor walks; the hierarchy has three tiers.
const maxDepth = 8

// Service manages cooperatives, their place in the federation hierarchy and
// their members.
type Service struct {
	store    storage.CooperativeStore
	programs storage.CoopProgramStore
	log      *logger.Logger
}

// New creates a cooperative service. programs may be nil, in which case
// deletes do not check for enrollments.
func New(store storage.CooperativeStore, programs storage.CoopProgramStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("cooperatives")
	}
	return &Service{store: store, programs: programs, log: log}
}

// Create registers a cooperative after validating its fields and parent.
func (s *Service) Create(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	coop.ID = ""
	normalize(&coop)
	coop.Status = cooperative.StatusActive
	coop.ArchivedAt = nil
	if err := validate(coop); err != nil {
		return cooperative.Cooperative{}, err
	}
	if err := s.checkParent(ctx, coop); err != nil {
		return cooperative.Cooperative{}, err
	}

	created, err := s.store.CreateCooperative(ctx, coop)
	if err != nil {
		return cooperative.Cooperative{}, duplicate(err, coop.RegistrationNo)
	}
	s.log.WithField("cooperative_id", created.ID).
		WithField("type", created.Type).
		Info("cooperative created")
	return created, nil
}

// Update replaces the editable fields of a cooperative. Status is changed
// only through Archive and Restore.
func (s *Service) Update(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	existing, err := s.store.GetCooperative(ctx, coop.ID)
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	normalize(&coop)
	coop.Status = existing.Status
	coop.ArchivedAt = existing.ArchivedAt
	if err := validate(coop); err != nil {
		return cooperative.Cooperative{}, err
	}
	if coop.ParentID == coop.ID {
		return cooperative.Cooperative{}, svcerrors.FieldError("parent_id", "a cooperative cannot be its own parent")
	}
	if err := s.checkParent(ctx, coop); err != nil {
		return cooperative.Cooperative{}, err
	}
	if coop.Type != existing.Type {
		children, err := s.Children(ctx, coop.ID)
		if err != nil {
			return cooperative.Cooperative{}, err
		}
		for _, child := range children {
			if !coop.Type.CanParent(child.Type) {
				return cooperative.Cooperative{}, svcerrors.FieldError("type",
					"type change would leave "+string(child.Type)+" child "+child.Name+" under a "+string(coop.Type))
			}
		}
	}

	updated, err := s.store.UpdateCooperative(ctx, coop)
	if err != nil {
		return cooperative.Cooperative{}, duplicate(err, coop.RegistrationNo)
	}
	return updated, nil
}

// Get fetches a cooperative.
func (s *Service) Get(ctx context.Context, id string) (cooperative.Cooperative, error) {
	return s.store.GetCooperative(ctx, id)
}

// List returns cooperatives matching filter, ordered by name.
func (s *Service) List(ctx context.Context, filter cooperative.Filter) ([]cooperative.Cooperative, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, svcerrors.FieldError("type", "unknown cooperative type")
	}
	return s.store.ListCooperatives(ctx, filter)
}

// Children lists the direct children of a cooperative.
func (s *Service) Children(ctx context.Context, id string) ([]cooperative.Cooperative, error) {
	return s.store.ListCooperatives(ctx, cooperative.Filter{ParentID: id})
}

// Archive marks a cooperative archived. Archived cooperatives cannot enroll
// in programs or receive new children.
func (s *Service) Archive(ctx context.Context, id string) (cooperative.Cooperative, error) {
	coop, err := s.store.GetCooperative(ctx, id)
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	if coop.Status == cooperative.StatusArchived {
		return coop, nil
	}
	now := time.Now().UTC()
	coop.Status = cooperative.StatusArchived
	coop.ArchivedAt = &now
	updated, err := s.store.UpdateCooperative(ctx, coop)
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	s.log.WithField("cooperative_id", id).Info("cooperative archived")
	return updated, nil
}

// Restore reactivates an archived cooperative.
func (s *Service) Restore(ctx context.Context, id string) (cooperative.Cooperative, error) {
	coop, err := s.store.GetCooperative(ctx, id)
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	if coop.Status == cooperative.StatusActive {
		return coop, nil
	}
	coop.Status = cooperative.StatusActive
	coop.ArchivedAt = nil
	return s.store.UpdateCooperative(ctx, coop)
}

// Delete removes a cooperative with no children and no enrollments.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetCooperative(ctx, id); err != nil {
		return err
	}
	children, err := s.Children(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return svcerrors.Conflict("cooperative has child cooperatives").WithDetails("children", len(children))
	}
	if s.programs != nil {
		enrolled, err := s.programs.ListCoopPrograms(ctx, coopprogram.Filter{CooperativeID: id})
		if err != nil {
			return err
		}
		if len(enrolled) > 0 {
			return svcerrors.Conflict("cooperative has program enrollments").WithDetails("coop_programs", len(enrolled))
		}
	}
	if err := s.store.DeleteCooperative(ctx, id); err != nil {
		return err
	}
	s.log.WithField("cooperative_id", id).Info("cooperative deleted")
	return nil
}

// checkParent enforces the hierarchy: tertiary cooperatives are roots, any
// other parent must sit exactly one tier above and not descend from coop.
func (s *Service) checkParent(ctx context.Context, coop cooperative.Cooperative) error {
	if coop.ParentID == "" {
		return nil
	}
	if coop.Type == cooperative.TypeTertiary {
		return svcerrors.FieldError("parent_id", "tertiary cooperatives cannot have a parent")
	}
	parent, err := s.store.GetCooperative(ctx, coop.ParentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return svcerrors.FieldError("parent_id", "parent cooperative not found")
		}
		return err
	}
	if !parent.Type.CanParent(coop.Type) {
		return svcerrors.FieldError("parent_id",
			"a "+string(coop.Type)+" cooperative cannot belong to a "+string(parent.Type)+" cooperative")
	}
	if parent.Status == cooperative.StatusArchived {
		return svcerrors.FieldError("parent_id", "parent cooperative is archived")
	}
	if coop.ID == "" {
		return nil
	}
	ancestor := parent
	for depth := 0; depth < maxDepth && ancestor.ParentID != ""; depth++ {
		if ancestor.ParentID == coop.ID {
			return svcerrors.FieldError("parent_id", "cooperative cannot be its own ancestor")
		}
		ancestor, err = s.store.GetCooperative(ctx, ancestor.ParentID)
		if err != nil {
			return err
		}
	}
	return nil
}

// --- Members ----------------------------------------------------------------

// AddMember records a member of a cooperative.
func (s *Service) AddMember(ctx context.Context, m cooperative.Member) (cooperative.Member, error) {
	m.ID = ""
	if err := validateMember(&m); err != nil {
		return cooperative.Member{}, err
	}
	if _, err := s.store.GetCooperative(ctx, m.CooperativeID); err != nil {
		return cooperative.Member{}, err
	}
	return s.store.CreateMember(ctx, m)
}

// UpdateMember edits a member's details.
func (s *Service) UpdateMember(ctx context.Context, m cooperative.Member) (cooperative.Member, error) {
	existing, err := s.store.GetMember(ctx, m.ID)
	if err != nil {
		return cooperative.Member{}, err
	}
	m.CooperativeID = existing.CooperativeID
	if err := validateMember(&m); err != nil {
		return cooperative.Member{}, err
	}
	return s.store.UpdateMember(ctx, m)
}

// RemoveMember deletes a member.
func (s *Service) RemoveMember(ctx context.Context, id string) error {
	return s.store.DeleteMember(ctx, id)
}

// ListMembers lists the members of a cooperative.
func (s *Service) ListMembers(ctx context.Context, cooperativeID string) ([]cooperative.Member, error) {
	if _, err := s.store.GetCooperative(ctx, cooperativeID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, cooperativeID)
}

func normalize(coop *cooperative.Cooperative) {
	coop.Name = strings.TrimSpace(coop.Name)
	coop.RegistrationNo = strings.TrimSpace(coop.RegistrationNo)
	coop.ParentID = strings.TrimSpace(coop.ParentID)
	coop.ContactEmail = strings.TrimSpace(coop.ContactEmail)
	coop.Type = cooperative.Type(strings.ToLower(strings.TrimSpace(string(coop.Type))))
}

func validate(coop cooperative.Cooperative) error {
	if coop.Name == "" {
		return svcerrors.FieldError("name", "name is required")
	}
	if coop.RegistrationNo == "" {
		return svcerrors.FieldError("registration_no", "registration number is required")
	}
	if !coop.Type.Valid() {
		return svcerrors.FieldError("type", "type must be tertiary, secondary or primary")
	}
	if coop.ContactEmail != "" {
		if _, err := mail.ParseAddress(coop.ContactEmail); err != nil {
			return svcerrors.FieldError("contact_email", "contact email is invalid")
		}
	}
	return nil
}

func validateMember(m *cooperative.Member) error {
	m.FullName = strings.TrimSpace(m.FullName)
	m.Email = strings.TrimSpace(m.Email)
	if m.CooperativeID == "" {
		return svcerrors.FieldError("cooperative_id", "cooperative_id is required")
	}
	if m.FullName == "" {
		return svcerrors.FieldError("full_name", "full name is required")
	}
	if m.Email != "" {
		if _, err := mail.ParseAddress(m.Email); err != nil {
			return svcerrors.FieldError("email", "email is invalid")
		}
	}
	return nil
}

func duplicate(err error, registrationNo string) error {
	if errors.Is(err, storage.ErrDuplicate) {
		return svcerrors.Conflict("registration number " + registrationNo + " is already registered")
	}
	return err
}
