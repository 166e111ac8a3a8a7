package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/amortization"
	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/notification"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/app/domain/synclog"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
// Like the postgres store it appends a sync log entry for every mutation.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	node          string
	now           func() time.Time
	cooperatives  map[string]cooperative.Cooperative
	members       map[string]cooperative.Member
	programs      map[string]program.Program
	checklists    map[string]checklist.Checklist
	uploads       map[string]checklist.Upload
	coopPrograms  map[string]coopprogram.CoopProgram
	installments  map[string]amortization.Installment
	notifications map[string]notification.Notification
	users         map[string]user.User
	syncLogs      []synclog.Entry
	syncStates    map[string]synclog.State
}

var _ storage.CooperativeStore = (*Store)(nil)
var _ storage.ProgramStore = (*Store)(nil)
var _ storage.ChecklistStore = (*Store)(nil)
var _ storage.CoopProgramStore = (*Store)(nil)
var _ storage.AmortizationStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.SyncLogStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		node:          "local",
		now:           func() time.Time { return time.Now().UTC() },
		cooperatives:  make(map[string]cooperative.Cooperative),
		members:       make(map[string]cooperative.Member),
		programs:      make(map[string]program.Program),
		checklists:    make(map[string]checklist.Checklist),
		uploads:       make(map[string]checklist.Upload),
		coopPrograms:  make(map[string]coopprogram.CoopProgram),
		installments:  make(map[string]amortization.Installment),
		notifications: make(map[string]notification.Notification),
		users:         make(map[string]user.User),
		syncStates:    make(map[string]synclog.State),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, sql.ErrNoRows)
}

// lessID orders the numeric ids handed out by nextIDLocked.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func (s *Store) logLocked(table, rowID string, op synclog.Operation, row interface{}) {
	entry := synclog.Entry{
		ID:         s.nextIDLocked(),
		TableName:  table,
		RowID:      rowID,
		Operation:  op,
		Origin:     s.node,
		ExecutedAt: s.now(),
	}
	if row != nil {
		if payload, err := json.Marshal(row); err == nil {
			entry.Payload = payload
		}
	}
	s.syncLogs = append(s.syncLogs, entry)
}

// CooperativeStore implementation ---------------------------------------------

func (s *Store) CreateCooperative(_ context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coop.ID == "" {
		coop.ID = s.nextIDLocked()
	} else if _, exists := s.cooperatives[coop.ID]; exists {
		return cooperative.Cooperative{}, fmt.Errorf("cooperative %s already exists", coop.ID)
	}
	for _, other := range s.cooperatives {
		if strings.EqualFold(other.RegistrationNo, coop.RegistrationNo) {
			return cooperative.Cooperative{}, storage.ErrDuplicate
		}
	}
	now := s.now()
	coop.CreatedAt = now
	coop.UpdatedAt = now
	s.cooperatives[coop.ID] = coop
	s.logLocked("cooperatives", coop.ID, synclog.OpInsert, coop)
	return coop, nil
}

func (s *Store) UpdateCooperative(_ context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.cooperatives[coop.ID]
	if !ok {
		return cooperative.Cooperative{}, notFound("cooperative", coop.ID)
	}
	for _, other := range s.cooperatives {
		if other.ID != coop.ID && strings.EqualFold(other.RegistrationNo, coop.RegistrationNo) {
			return cooperative.Cooperative{}, storage.ErrDuplicate
		}
	}
	coop.CreatedAt = original.CreatedAt
	coop.UpdatedAt = s.now()
	s.cooperatives[coop.ID] = coop
	s.logLocked("cooperatives", coop.ID, synclog.OpUpdate, coop)
	return coop, nil
}

func (s *Store) GetCooperative(_ context.Context, id string) (cooperative.Cooperative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coop, ok := s.cooperatives[id]
	if !ok {
		return cooperative.Cooperative{}, notFound("cooperative", id)
	}
	return coop, nil
}

func (s *Store) GetCooperativeByRegistration(_ context.Context, registrationNo string) (cooperative.Cooperative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, coop := range s.cooperatives {
		if strings.EqualFold(coop.RegistrationNo, registrationNo) {
			return coop, nil
		}
	}
	return cooperative.Cooperative{}, notFound("cooperative registration", registrationNo)
}

func (s *Store) ListCooperatives(_ context.Context, filter cooperative.Filter) ([]cooperative.Cooperative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]cooperative.Cooperative, 0, len(s.cooperatives))
	for _, coop := range s.cooperatives {
		if filter.Type != "" && coop.Type != filter.Type {
			continue
		}
		if filter.Status != "" && coop.Status != filter.Status {
			continue
		}
		if filter.ParentID != "" && coop.ParentID != filter.ParentID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(coop.Name), search) &&
			!strings.Contains(strings.ToLower(coop.RegistrationNo), search) {
			continue
		}
		result = append(result, coop)
	}
	sort.Slice(result, func(i, j int) bool { return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name) })
	return result, nil
}

func (s *Store) DeleteCooperative(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cooperatives[id]; !ok {
		return notFound("cooperative", id)
	}
	for mid, m := range s.members {
		if m.CooperativeID == id {
			delete(s.members, mid)
			s.logLocked("members", mid, synclog.OpDelete, nil)
		}
	}
	delete(s.cooperatives, id)
	s.logLocked("cooperatives", id, synclog.OpDelete, nil)
	return nil
}

func (s *Store) CreateMember(_ context.Context, m cooperative.Member) (cooperative.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cooperatives[m.CooperativeID]; !ok {
		return cooperative.Member{}, notFound("cooperative", m.CooperativeID)
	}
	if m.ID == "" {
		m.ID = s.nextIDLocked()
	}
	now := s.now()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.members[m.ID] = m
	s.logLocked("members", m.ID, synclog.OpInsert, m)
	return m, nil
}

func (s *Store) UpdateMember(_ context.Context, m cooperative.Member) (cooperative.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.members[m.ID]
	if !ok {
		return cooperative.Member{}, notFound("member", m.ID)
	}
	m.CooperativeID = original.CooperativeID
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = s.now()
	s.members[m.ID] = m
	s.logLocked("members", m.ID, synclog.OpUpdate, m)
	return m, nil
}

func (s *Store) GetMember(_ context.Context, id string) (cooperative.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return cooperative.Member{}, notFound("member", id)
	}
	return m, nil
}

func (s *Store) ListMembers(_ context.Context, cooperativeID string) ([]cooperative.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []cooperative.Member
	for _, m := range s.members {
		if m.CooperativeID == cooperativeID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

func (s *Store) DeleteMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return notFound("member", id)
	}
	delete(s.members, id)
	s.logLocked("members", id, synclog.OpDelete, nil)
	return nil
}

// ProgramStore implementation -------------------------------------------------

func (s *Store) CreateProgram(_ context.Context, p program.Program) (program.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.programs {
		if strings.EqualFold(other.Code, p.Code) {
			return program.Program{}, storage.ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = s.nextIDLocked()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.programs[p.ID] = p
	s.logLocked("programs", p.ID, synclog.OpInsert, p)
	return p, nil
}

func (s *Store) UpdateProgram(_ context.Context, p program.Program) (program.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.programs[p.ID]
	if !ok {
		return program.Program{}, notFound("program", p.ID)
	}
	for _, other := range s.programs {
		if other.ID != p.ID && strings.EqualFold(other.Code, p.Code) {
			return program.Program{}, storage.ErrDuplicate
		}
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = s.now()
	s.programs[p.ID] = p
	s.logLocked("programs", p.ID, synclog.OpUpdate, p)
	return p, nil
}

func (s *Store) GetProgram(_ context.Context, id string) (program.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[id]
	if !ok {
		return program.Program{}, notFound("program", id)
	}
	return p, nil
}

func (s *Store) ListPrograms(_ context.Context, activeOnly bool) ([]program.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]program.Program, 0, len(s.programs))
	for _, p := range s.programs {
		if activeOnly && !p.Active {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (s *Store) DeleteProgram(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[id]; !ok {
		return notFound("program", id)
	}
	for cid, c := range s.checklists {
		if c.ProgramID == id {
			delete(s.checklists, cid)
			s.logLocked("checklists", cid, synclog.OpDelete, nil)
		}
	}
	delete(s.programs, id)
	s.logLocked("programs", id, synclog.OpDelete, nil)
	return nil
}

// ChecklistStore implementation -----------------------------------------------

func (s *Store) CreateChecklist(_ context.Context, c checklist.Checklist) (checklist.Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[c.ProgramID]; !ok {
		return checklist.Checklist{}, notFound("program", c.ProgramID)
	}
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.checklists[c.ID] = c
	s.logLocked("checklists", c.ID, synclog.OpInsert, c)
	return c, nil
}

func (s *Store) UpdateChecklist(_ context.Context, c checklist.Checklist) (checklist.Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.checklists[c.ID]
	if !ok {
		return checklist.Checklist{}, notFound("checklist", c.ID)
	}
	c.ProgramID = original.ProgramID
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = s.now()
	s.checklists[c.ID] = c
	s.logLocked("checklists", c.ID, synclog.OpUpdate, c)
	return c, nil
}

func (s *Store) GetChecklist(_ context.Context, id string) (checklist.Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.checklists[id]
	if !ok {
		return checklist.Checklist{}, notFound("checklist", id)
	}
	return c, nil
}

func (s *Store) ListChecklists(_ context.Context, programID string) ([]checklist.Checklist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []checklist.Checklist
	for _, c := range s.checklists {
		if c.ProgramID == programID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return lessID(result[i].ID, result[j].ID)
	})
	return result, nil
}

func (s *Store) DeleteChecklist(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checklists[id]; !ok {
		return notFound("checklist", id)
	}
	delete(s.checklists, id)
	s.logLocked("checklists", id, synclog.OpDelete, nil)
	return nil
}

func (s *Store) SaveUpload(_ context.Context, u checklist.Upload) (checklist.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, existing := range s.uploads {
		if existing.CoopProgramID == u.CoopProgramID && existing.ChecklistID == u.ChecklistID {
			u.ID = id
			u.UploadedAt = now
			u.UpdatedAt = now
			s.uploads[id] = u
			s.logLocked("checklist_uploads", id, synclog.OpUpdate, u)
			return u, nil
		}
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	u.UploadedAt = now
	u.UpdatedAt = now
	s.uploads[u.ID] = u
	s.logLocked("checklist_uploads", u.ID, synclog.OpInsert, u)
	return u, nil
}

func (s *Store) GetUpload(_ context.Context, id string) (checklist.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.uploads[id]
	if !ok {
		return checklist.Upload{}, notFound("upload", id)
	}
	return u, nil
}

func (s *Store) ListUploads(_ context.Context, coopProgramID string) ([]checklist.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []checklist.Upload
	for _, u := range s.uploads {
		if u.CoopProgramID == coopProgramID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return lessID(result[i].ID, result[j].ID) })
	return result, nil
}

func (s *Store) DeleteUpload(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[id]; !ok {
		return notFound("upload", id)
	}
	delete(s.uploads, id)
	s.logLocked("checklist_uploads", id, synclog.OpDelete, nil)
	return nil
}

// CoopProgramStore implementation ---------------------------------------------

func (s *Store) CreateCoopProgram(_ context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.ID == "" {
		cp.ID = s.nextIDLocked()
	}
	for _, other := range s.coopPrograms {
		if other.ReferenceNo == cp.ReferenceNo {
			return coopprogram.CoopProgram{}, storage.ErrDuplicate
		}
	}
	now := s.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.coopPrograms[cp.ID] = cp
	s.logLocked("coop_programs", cp.ID, synclog.OpInsert, cp)
	return cp, nil
}

func (s *Store) UpdateCoopProgram(_ context.Context, cp coopprogram.CoopProgram) (coopprogram.CoopProgram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.coopPrograms[cp.ID]
	if !ok {
		return coopprogram.CoopProgram{}, notFound("coop program", cp.ID)
	}
	cp.CooperativeID = original.CooperativeID
	cp.ProgramID = original.ProgramID
	cp.CreatedAt = original.CreatedAt
	cp.UpdatedAt = s.now()
	s.coopPrograms[cp.ID] = cp
	s.logLocked("coop_programs", cp.ID, synclog.OpUpdate, cp)
	return cp, nil
}

func (s *Store) GetCoopProgram(_ context.Context, id string) (coopprogram.CoopProgram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.coopPrograms[id]
	if !ok {
		return coopprogram.CoopProgram{}, notFound("coop program", id)
	}
	return cp, nil
}

func (s *Store) ListCoopPrograms(_ context.Context, filter coopprogram.Filter) ([]coopprogram.CoopProgram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []coopprogram.CoopProgram
	for _, cp := range s.coopPrograms {
		if filter.CooperativeID != "" && cp.CooperativeID != filter.CooperativeID {
			continue
		}
		if filter.ProgramID != "" && cp.ProgramID != filter.ProgramID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, cp.Status) {
			continue
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return lessID(result[i].ID, result[j].ID) })
	return result, nil
}

func hasStatus(statuses []coopprogram.Status, s coopprogram.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s *Store) DeleteCoopProgram(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coopPrograms[id]; !ok {
		return notFound("coop program", id)
	}
	for uid, u := range s.uploads {
		if u.CoopProgramID == id {
			delete(s.uploads, uid)
			s.logLocked("checklist_uploads", uid, synclog.OpDelete, nil)
		}
	}
	for iid, inst := range s.installments {
		if inst.CoopProgramID == id {
			delete(s.installments, iid)
			s.logLocked("amortization_schedules", iid, synclog.OpDelete, nil)
		}
	}
	delete(s.coopPrograms, id)
	s.logLocked("coop_programs", id, synclog.OpDelete, nil)
	return nil
}

// AmortizationStore implementation --------------------------------------------

func (s *Store) ReplaceSchedule(_ context.Context, coopProgramID string, items []amortization.Installment) ([]amortization.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.coopPrograms[coopProgramID]; !ok {
		return nil, notFound("coop program", coopProgramID)
	}
	for id, inst := range s.installments {
		if inst.CoopProgramID == coopProgramID {
			delete(s.installments, id)
			s.logLocked("amortization_schedules", id, synclog.OpDelete, nil)
		}
	}
	now := s.now()
	out := make([]amortization.Installment, 0, len(items))
	for _, item := range items {
		item.ID = s.nextIDLocked()
		item.CoopProgramID = coopProgramID
		item.CreatedAt = now
		item.UpdatedAt = now
		s.installments[item.ID] = item
		s.logLocked("amortization_schedules", item.ID, synclog.OpInsert, item)
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) ListInstallments(_ context.Context, coopProgramID string) ([]amortization.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []amortization.Installment
	for _, inst := range s.installments {
		if inst.CoopProgramID == coopProgramID {
			result = append(result, inst)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

func (s *Store) UpdateInstallment(_ context.Context, item amortization.Installment) (amortization.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.installments[item.ID]
	if !ok {
		return amortization.Installment{}, notFound("installment", item.ID)
	}
	item.CoopProgramID = original.CoopProgramID
	item.Sequence = original.Sequence
	item.CreatedAt = original.CreatedAt
	item.UpdatedAt = s.now()
	s.installments[item.ID] = item
	s.logLocked("amortization_schedules", item.ID, synclog.OpUpdate, item)
	return item, nil
}

func (s *Store) ApplyPayment(_ context.Context, coopProgramID string, apply storage.PaymentFunc) ([]amortization.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []amortization.Installment
	for _, inst := range s.installments {
		if inst.CoopProgramID == coopProgramID {
			items = append(items, inst)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Sequence < items[j].Sequence })

	changed, err := apply(items)
	if err != nil {
		return nil, err
	}
	for _, item := range changed {
		if original, ok := s.installments[item.ID]; !ok || original.CoopProgramID != coopProgramID {
			return nil, notFound("installment", item.ID)
		}
	}
	now := s.now()
	out := make([]amortization.Installment, 0, len(changed))
	for _, item := range changed {
		original := s.installments[item.ID]
		item.CoopProgramID = original.CoopProgramID
		item.Sequence = original.Sequence
		item.CreatedAt = original.CreatedAt
		item.UpdatedAt = now
		s.installments[item.ID] = item
		s.logLocked("amortization_schedules", item.ID, synclog.OpUpdate, item)
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) ListUnpaidDueBefore(_ context.Context, before time.Time) ([]amortization.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []amortization.Installment
	for _, inst := range s.installments {
		if inst.Status == amortization.StatusPaid || !inst.DueDate.Before(before) {
			continue
		}
		result = append(result, inst)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return lessID(result[i].ID, result[j].ID)
	})
	return result, nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.nextIDLocked()
	}
	now := s.now()
	n.CreatedAt = now
	n.UpdatedAt = now
	s.notifications[n.ID] = n
	s.logLocked("notifications", n.ID, synclog.OpInsert, n)
	return n, nil
}

func (s *Store) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return notification.Notification{}, notFound("notification", id)
	}
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return lessID(result[j].ID, result[i].ID) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string, at time.Time) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return notification.Notification{}, notFound("notification", id)
	}
	if n.ReadAt == nil {
		readAt := at.UTC()
		n.ReadAt = &readAt
		n.UpdatedAt = s.now()
		s.notifications[id] = n
		s.logLocked("notifications", id, synclog.OpUpdate, n)
	}
	return n, nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	readAt := at.UTC()
	for id, n := range s.notifications {
		if n.UserID != userID || n.ReadAt != nil {
			continue
		}
		n.ReadAt = &readAt
		n.UpdatedAt = s.now()
		s.notifications[id] = n
		s.logLocked("notifications", id, synclog.OpUpdate, n)
		count++
	}
	return count, nil
}

func (s *Store) DeleteNotification(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return notFound("notification", id)
	}
	delete(s.notifications, id)
	s.logLocked("notifications", id, synclog.OpDelete, nil)
	return nil
}

func (s *Store) NotificationExists(_ context.Context, userID string, kind notification.Kind, reference string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications {
		if n.UserID == userID && n.Kind == kind && n.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) {
			return user.User{}, storage.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	s.logLocked("users", u.ID, synclog.OpInsert, u)
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, notFound("user", u.ID)
	}
	for _, other := range s.users {
		if other.ID != u.ID && strings.EqualFold(other.Email, u.Email) {
			return user.User{}, storage.ErrDuplicate
		}
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	s.logLocked("users", u.ID, synclog.OpUpdate, u)
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, notFound("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, notFound("user", email)
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(s.users, id)
	s.logLocked("users", id, synclog.OpDelete, nil)
	return nil
}

// SyncLogStore implementation -------------------------------------------------

func (s *Store) AppendSyncLog(_ context.Context, entry synclog.Entry) (synclog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = s.now()
	}
	if entry.Origin == "" {
		entry.Origin = s.node
	}
	s.syncLogs = append(s.syncLogs, entry)
	return entry, nil
}

func (s *Store) ListSyncLogs(_ context.Context, after time.Time, limit int) ([]synclog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []synclog.Entry
	for _, e := range s.syncLogs {
		if e.ExecutedAt.After(after) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ExecutedAt.Before(result[j].ExecutedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountSyncLogsAfter(_ context.Context, after time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.syncLogs {
		if e.ExecutedAt.After(after) {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetSyncState(_ context.Context, table string, dir synclog.Direction) (synclog.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.syncStates[table+"/"+string(dir)]
	if !ok {
		return synclog.State{TableName: table, Direction: dir}, nil
	}
	return state, nil
}

func (s *Store) ListSyncStates(_ context.Context) ([]synclog.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]synclog.State, 0, len(s.syncStates))
	for _, st := range s.syncStates {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TableName != result[j].TableName {
			return result[i].TableName < result[j].TableName
		}
		return result[i].Direction < result[j].Direction
	})
	return result, nil
}

// SetSyncState records a high-water mark. Only the sync engine writes states,
// and it does so against the database directly; this exists for tests.
func (s *Store) SetSyncState(state synclog.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = s.now()
	s.syncStates[state.TableName+"/"+string(state.Direction)] = state
}
