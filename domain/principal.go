package domain

// Roles carried by authenticated principals.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Principal is the acting identity passed explicitly into every coordinator
// operation. There is no ambient user context.
type Principal struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the principal may act on other users' chats.
func (p Principal) IsStaff() bool {
	return p.HasRole(RoleOperator) || p.HasRole(RoleAdmin)
}
