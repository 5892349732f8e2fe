package types

import "time"

// Role is a user's authorization level. Mutating operations require at
// least OPERATOR; reads require at least VIEWER.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleViewer   Role = "VIEWER"
)

// rank orders roles for >= comparisons; higher is more privileged.
var rank = map[Role]int{RoleViewer: 0, RoleOperator: 1, RoleAdmin: 2}

// Allows reports whether r satisfies a requirement of at least min.
func (r Role) Allows(min Role) bool { return rank[r] >= rank[min] }

// User authenticates API calls. The core only ever sees a User as the
// `actor` parameter on mutating operations — auth itself is out of scope
// (spec.md §1).
type User struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex"`
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
