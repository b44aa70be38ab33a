package admin

import "time"

// State is the credential lifecycle state of an admin account.
type State int

const (
	// StateFirstLogin accounts hold a provisioned plaintext credential and must rotate it.
	StateFirstLogin State = iota
	// StateActive accounts hold a bcrypt hash.
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "first_login"
}

// Role is the visibility an admin has over roster data.
type Role string

const (
	RoleBranch      Role = "branch"
	RoleCrossBranch Role = "cross_branch"
)

// Account is one branch administrator as stored.
type Account struct {
	ID                int64
	Username          string
	Credential        string
	Branch            string
	FirstLogin        bool
	PasswordChangedAt *time.Time
}

// State derives the lifecycle state from the first-login flag.
func (a Account) State() State {
	if a.FirstLogin {
		return StateFirstLogin
	}
	return StateActive
}

// Profile is the caller-safe view of an account.
type Profile struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Branch       string `json:"branch"`
	IsFirstLogin bool   `json:"isFirstLogin"`
	Role         Role   `json:"role"`
}

// Scope is the visibility of an admin for one request.
type Scope struct {
	Username string
	Branch   string
	Role     Role
}

// AllBranches reports whether the branch filter is bypassed.
func (s Scope) AllBranches() bool { return s.Role == RoleCrossBranch }

// Allows reports whether data belonging to branch is visible.
func (s Scope) Allows(branch string) bool {
	return s.AllBranches() || s.Branch == branch
}
