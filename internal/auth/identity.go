package auth

// Role of a caller identity.
type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Capability is a named permission checked independently of role name.
type Capability string

const (
	CapManageStations  Capability = "manage-stations"
	CapManageBookings  Capability = "manage-bookings"
	CapManagePayments  Capability = "manage-payments"
	CapAssignRoles     Capability = "assign-roles"
	CapViewActivityLog Capability = "view-activity-log"
)

var roleCapabilities = map[Role][]Capability{
	RoleOperator: {CapManageStations},
	RoleAdmin: {
		CapManageStations,
		CapManageBookings,
		CapManagePayments,
		CapAssignRoles,
		CapViewActivityLog,
	},
}

// Identity is a verified caller supplied by the authentication boundary.
// The core trusts it and performs no credential verification itself.
type Identity struct {
	UserID int64
	Role   Role
}

// HasCapability reports whether the identity's role grants the capability.
func (i Identity) HasCapability(c Capability) bool {
	for _, held := range roleCapabilities[i.Role] {
		if held == c {
			return true
		}
	}
	return false
}

// IsAdminLike reports whether the identity acts with elevated privileges,
// used for audit actor classification.
func (i Identity) IsAdminLike() bool {
	return i.Role == RoleAdmin || i.Role == RoleOperator
}
