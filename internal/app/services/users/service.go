package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/storage"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on create and password change.
const MinPasswordLength = 8

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(u user.User) (string, time.Time, error)
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      user.User `json:"user"`
}

// Service manages back-office operators and their credentials.
type Service struct {
	store  storage.UserStore
	tokens TokenIssuer
	cost   int
	log    *logger.Logger
}

// New creates a user service. tokens may be nil when only management
// operations are needed (for example from the CLI).
func New(store storage.UserStore, tokens TokenIssuer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, tokens: tokens, cost: bcrypt.DefaultCost, log: log}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Create adds an active user.
func (s *Service) Create(ctx context.Context, name, email, password string, role user.Role) (user.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return user.User{}, svcerrors.FieldError("name", "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return user.User{}, svcerrors.FieldError("email", "email is invalid")
	}
	if role == "" {
		role = user.RoleViewer
	}
	if !role.Valid() {
		return user.User{}, svcerrors.FieldError("role", "role must be admin, staff or viewer")
	}
	hash, err := s.hash(password)
	if err != nil {
		return user.User{}, err
	}

	created, err := s.store.CreateUser(ctx, user.User{Name: name, Email: email, PasswordHash: hash, Role: role, Active: true})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return user.User{}, svcerrors.Conflict("email " + email + " is already registered")
		}
		return user.User{}, err
	}
	s.log.WithField("user_id", created.ID).WithField("role", role).Info("user created")
	return created, nil
}

// Update changes name, role or active flag. Nil fields are left untouched.
// The last active admin cannot be demoted or deactivated.
func (s *Service) Update(ctx context.Context, id string, name *string, role *user.Role, active *bool) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return user.User{}, svcerrors.FieldError("name", "name cannot be empty")
		}
		u.Name = trimmed
	}
	losesAdmin := false
	if role != nil {
		if !role.Valid() {
			return user.User{}, svcerrors.FieldError("role", "role must be admin, staff or viewer")
		}
		losesAdmin = u.Role == user.RoleAdmin && *role != user.RoleAdmin
		u.Role = *role
	}
	if active != nil {
		if !*active && u.Role == user.RoleAdmin {
			losesAdmin = true
		}
		u.Active = *active
	}
	if losesAdmin {
		if err := s.ensureAnotherAdmin(ctx, u.ID); err != nil {
			return user.User{}, err
		}
	}
	return s.store.UpdateUser(ctx, u)
}

// SetPassword replaces a user's password.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	_, err = s.store.UpdateUser(ctx, u)
	return err
}

// Get fetches a user.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns every user ordered by email.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// Delete removes a user other than the last active admin.
func (s *Service) Delete(ctx context.Context, id string) error {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == user.RoleAdmin && u.Active {
		if err := s.ensureAnotherAdmin(ctx, id); err != nil {
			return err
		}
	}
	return s.store.DeleteUser(ctx, id)
}

// Login verifies credentials and issues an access token. Unknown emails and
// wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if s.tokens == nil {
		return LoginResult{}, svcerrors.Unavailable("token issuing is not configured", nil)
	}
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if storage.IsNotFound(err) {
			return LoginResult{}, svcerrors.Unauthorized("invalid email or password")
		}
		return LoginResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.log.WithField("user_id", u.ID).Warn("login rejected")
		return LoginResult{}, svcerrors.Unauthorized("invalid email or password")
	}
	if !u.Active {
		return LoginResult{}, svcerrors.Forbidden("account is disabled")
	}

	now := time.Now().UTC()
	u.LastLoginAt = &now
	if updated, err := s.store.UpdateUser(ctx, u); err == nil {
		u = updated
	} else {
		s.log.WithField("user_id", u.ID).WithError(err).Warn("record last login")
	}

	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		return LoginResult{}, svcerrors.Internal("issue token", err)
	}
	return LoginResult{Token: token, ExpiresAt: expires, User: u}, nil
}

// EnsureAdmin creates an admin when no user exists yet. It reports whether a
// user was created.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	existing, err := s.store.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	if _, err := s.Create(ctx, name, email, password, user.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// Recipients returns active users with one of roles.
func (s *Service) Recipients(ctx context.Context, roles ...user.Role) ([]user.User, error) {
	all, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []user.User
	for _, u := range all {
		if !u.Active {
			continue
		}
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (s *Service) ensureAnotherAdmin(ctx context.Context, exceptID string) error {
	all, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range all {
		if u.ID != exceptID && u.Role == user.RoleAdmin && u.Active {
			return nil
		}
	}
	return svcerrors.Conflict("at least one active admin is required")
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", svcerrors.FieldError("password", "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", svcerrors.Internal("hash password", err)
	}
	return string(hash), nil
}
