package roles

import (
	"time"

	"github.com/anonlounge/anonlounge/internal/permission"
)

// DefaultRoleName is the role every user falls back to. It always exists and
// cannot be deleted.
const DefaultRoleName = "default"

// Role bundles a permission mask under a name with an integer power rank.
// Strictly higher power may act on strictly lower power.
type Role struct {
	ID          int64
	Name        string
	Power       int
	Permissions permission.Permission
	CreatedAt   time.Time
}
