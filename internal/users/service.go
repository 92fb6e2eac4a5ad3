package users

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anonlounge/anonlounge/internal/permission"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrInvalidInterval indicates a ban whose end predates its start.
	ErrInvalidInterval = errors.New("users: ban end date must not precede start date")
	// ErrInvalidDuration indicates a non-positive chat delay.
	ErrInvalidDuration = errors.New("users: chat delay must be > 0")
)

// RepositoryPort defines data access methods for the user store.
type RepositoryPort interface {
	CreateIfAbsent(ctx context.Context, id int64) (bool, error)
	GetUser(ctx context.Context, id int64) (User, error)
	IsBanned(ctx context.Context, id int64, now time.Time) (bool, error)
	IsActive(ctx context.Context, id int64) (bool, error)
	LogJoin(ctx context.Context, id int64, at time.Time) error
	LogQuit(ctx context.Context, id int64, at time.Time) error
	InsertBan(ctx context.Context, id int64, start, end time.Time, reason string) error
	RevokeBans(ctx context.Context, id int64, at time.Time, reason string) error
	SetPermissions(ctx context.Context, id int64, perms permission.Permission) error
	AssignRole(ctx context.Context, id int64, roleName string) error
	SetChatDelay(ctx context.Context, id int64, delay time.Duration) error
	ResetChatDelay(ctx context.Context, id int64) error
	BanLog(ctx context.Context, id int64) ([]BanRecord, error)
	JoinQuitLog(ctx context.Context, id int64) ([]MembershipEvent, error)
	ActiveRecipients(ctx context.Context, required permission.Permission, now time.Time) ([]Recipient, error)
	GetCaptchaStatus(ctx context.Context, id int64) (CaptchaStatus, error)
	SaveCaptchaStatus(ctx context.Context, st CaptchaStatus) error
}

// Service handles user store business logic. Hierarchy checks live in the
// security package and are applied by command handlers before calling in.
type Service struct {
	repo        RepositoryPort
	defaultRole string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds a Service. defaultRole is assigned to users created by
// lazy upsert; its permission mask is copied by the role assignment.
func NewService(repo RepositoryPort, defaultRole string, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		defaultRole: defaultRole,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetOrCreate upserts the user on first reference, assigning the default
// role and copying its permission mask. Idempotent.
func (s *Service) GetOrCreate(ctx context.Context, id int64) (User, error) {
	created, err := s.repo.CreateIfAbsent(ctx, id)
	if err != nil {
		return User{}, err
	}
	if created {
		if err := s.repo.AssignRole(ctx, id, s.defaultRole); err != nil {
			return User{}, err
		}
		s.logger.Debug("user created", slog.Int64("user_id", id), slog.String("role", s.defaultRole))
	}
	return s.repo.GetUser(ctx, id)
}

// Get loads an existing user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// IsBanned derives the banned state from the ban log at the current time.
func (s *Service) IsBanned(ctx context.Context, id int64) (bool, error) {
	return s.repo.IsBanned(ctx, id, s.now())
}

// IsActive derives the membership state from the join/quit log ordering.
func (s *Service) IsActive(ctx context.Context, id int64) (bool, error) {
	return s.repo.IsActive(ctx, id)
}

// Join appends a join row.
func (s *Service) Join(ctx context.Context, id int64) error {
	if err := s.repo.LogJoin(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("user joined", slog.Int64("user_id", id))
	return nil
}

// Kick appends a quit row. Quitting voluntarily is the same operation.
func (s *Service) Kick(ctx context.Context, id int64) error {
	if err := s.repo.LogQuit(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.Info("user kicked", slog.Int64("user_id", id))
	return nil
}

// Ban appends a ban interval starting now and kicks the user. A zero end
// means forever. Fails with ErrInvalidInterval when end precedes start.
func (s *Service) Ban(ctx context.Context, id int64, reason string, end time.Time) error {
	return s.BanFrom(ctx, id, reason, s.now(), end)
}

// BanFrom appends a ban interval with an explicit start.
func (s *Service) BanFrom(ctx context.Context, id int64, reason string, start, end time.Time) error {
	if end.IsZero() {
		end = Forever
	}
	if end.Before(start) {
		return ErrInvalidInterval
	}
	if err := s.repo.InsertBan(ctx, id, start, end, reason); err != nil {
		return err
	}
	s.logger.Info("user banned",
		slog.Int64("user_id", id),
		slog.Time("end_date", end),
		slog.String("reason", reason))
	return nil
}

// Unban revokes every ban interval covering now. The rows stay in the log.
func (s *Service) Unban(ctx context.Context, id int64, reason string) error {
	if err := s.repo.RevokeBans(ctx, id, s.now(), reason); err != nil {
		return err
	}
	s.logger.Info("user unbanned", slog.Int64("user_id", id), slog.String("reason", reason))
	return nil
}

// SetPermissions overwrites the user's permission mask.
func (s *Service) SetPermissions(ctx context.Context, id int64, perms permission.Permission) error {
	if err := s.repo.SetPermissions(ctx, id, perms); err != nil {
		return err
	}
	s.logger.Info("user permissions set",
		slog.Int64("user_id", id),
		slog.String("permissions", perms.String()))
	return nil
}

// SetRole reassigns the user's role; the role's permission mask overwrites
// the user's mask as a single side effect of the assignment.
func (s *Service) SetRole(ctx context.Context, id int64, roleName string) error {
	if err := s.repo.AssignRole(ctx, id, roleName); err != nil {
		return err
	}
	s.logger.Info("user role set", slog.Int64("user_id", id), slog.String("role", roleName))
	return nil
}

// SetChatDelay stores a per-user anti-flood override. Must be positive.
func (s *Service) SetChatDelay(ctx context.Context, id int64, delay time.Duration) error {
	if delay <= 0 {
		return ErrInvalidDuration
	}
	return s.repo.SetChatDelay(ctx, id, delay)
}

// ResetChatDelay clears the per-user override.
func (s *Service) ResetChatDelay(ctx context.Context, id int64) error {
	return s.repo.ResetChatDelay(ctx, id)
}

// BanLog returns the ban history, most recent first.
func (s *Service) BanLog(ctx context.Context, id int64) ([]BanRecord, error) {
	return s.repo.BanLog(ctx, id)
}

// JoinQuitLog returns the membership history, most recent first.
func (s *Service) JoinQuitLog(ctx context.Context, id int64) ([]MembershipEvent, error) {
	return s.repo.JoinQuitLog(ctx, id)
}

// ActiveRecipients lists users eligible to receive a broadcast that
// requires the given permission mask.
func (s *Service) ActiveRecipients(ctx context.Context, required permission.Permission) ([]Recipient, error) {
	return s.repo.ActiveRecipients(ctx, required, s.now())
}

// CaptchaStatus loads the user's captcha record.
func (s *Service) CaptchaStatus(ctx context.Context, id int64) (CaptchaStatus, error) {
	return s.repo.GetCaptchaStatus(ctx, id)
}

// SaveCaptchaStatus persists the whole captcha record.
func (s *Service) SaveCaptchaStatus(ctx context.Context, st CaptchaStatus) error {
	return s.repo.SaveCaptchaStatus(ctx, st)
}

// WaiveCaptcha marks the captcha as passed without a challenge.
func (s *Service) WaiveCaptcha(ctx context.Context, id int64) error {
	st, err := s.repo.GetCaptchaStatus(ctx, id)
	if err != nil {
		return err
	}
	st.Passed = true
	st.CurrentValue = ""
	st.FailedAttempts = 0
	if err := s.repo.SaveCaptchaStatus(ctx, st); err != nil {
		return err
	}
	s.logger.Info("captcha waived", slog.Int64("user_id", id))
	return nil
}

// ResetCaptcha clears the captcha state so the user must solve a fresh
// challenge. The monotonic total failure counter is preserved.
func (s *Service) ResetCaptcha(ctx context.Context, id int64) error {
	st, err := s.repo.GetCaptchaStatus(ctx, id)
	if err != nil {
		return err
	}
	st.Passed = false
	st.CurrentValue = ""
	st.FailedAttempts = 0
	st.CreationTime = time.Time{}
	st.LastTryTime = time.Time{}
	if err := s.repo.SaveCaptchaStatus(ctx, st); err != nil {
		return err
	}
	s.logger.Info("captcha reset", slog.Int64("user_id", id))
	return nil
}
