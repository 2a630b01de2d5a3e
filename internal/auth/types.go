package auth

// Role is the closed set of staff roles known to the admission system.
type Role int

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleDoctor
	RoleNurse
	RoleReception
	RoleFinance
)

var roleLabels = map[Role]string{
	RoleUnknown:   "Unknown",
	RoleAdmin:     "Administrator",
	RoleDoctor:    "Doctor",
	RoleNurse:     "Nurse",
	RoleReception: "Receptionist",
	RoleFinance:   "Finance Officer",
}

var roleNames = map[string]Role{
	"admin":     RoleAdmin,
	"doctor":    RoleDoctor,
	"nurse":     RoleNurse,
	"reception": RoleReception,
	"finance":   RoleFinance,
}

// Label returns the display label for the role. Total over the enum;
// anything outside the closed set maps to the Unknown label.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return roleLabels[RoleUnknown]
}

// Name returns the storage name for the role, the inverse of ParseRole.
func (r Role) Name() string {
	for name, role := range roleNames {
		if role == r {
			return name
		}
	}
	return "unknown"
}

// ParseRole maps a storage name to a Role, RoleUnknown for anything else.
func ParseRole(name string) Role {
	if role, ok := roleNames[name]; ok {
		return role
	}
	return RoleUnknown
}

// UserRecord is what the credential store hands back for a username.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
}
