package users

import (
	"time"

	"github.com/anonlounge/anonlounge/internal/permission"
)

// Forever is the open-ended ban horizon. Stored as-is so interval
// containment queries need no special casing.
var Forever = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// User is the durable per-user record. Only ID is authoritative platform
// identity; names and handles are enrichment looked up elsewhere. Banned and
// active state are derived from the logs, never stored here.
type User struct {
	ID          int64
	Permissions permission.Permission
	RoleName    string
	RolePower   int
	ChatDelay   *time.Duration
	CreatedAt   time.Time
}

// CaptchaStatus tracks the per-user challenge lifecycle, 1:1 with User.
// CurrentValue empty means no active challenge. TotalFailedAttempts is
// monotonic; FailedAttempts resets on success or lockout.
type CaptchaStatus struct {
	UserID              int64
	CurrentValue        string
	CreationTime        time.Time
	LastTryTime         time.Time
	FailedAttempts      int
	TotalFailedAttempts int
	Passed              bool
}

// BanRecord is one append-only ban interval. A revoked record stays in the
// log but no longer counts toward the derived banned state.
type BanRecord struct {
	ID           int64
	UserID       int64
	StartDate    time.Time
	EndDate      time.Time
	Reason       string
	RevokedAt    *time.Time
	RevokeReason string
}

// MembershipEventKind distinguishes join from quit rows.
type MembershipEventKind string

const (
	EventJoin MembershipEventKind = "join"
	EventQuit MembershipEventKind = "quit"
)

// MembershipEvent is one join or quit log row.
type MembershipEvent struct {
	UserID int64
	Kind   MembershipEventKind
	At     time.Time
}

// Recipient is the projection the broadcast relay needs per eligible user.
type Recipient struct {
	ID          int64
	Permissions permission.Permission
}
