package models

type UserRole string

const (
	RoleAttendee UserRole = "attendee"
	RoleStaff    UserRole = "staff"
	RoleAdmin    UserRole = "admin"
)

var roleRank = map[UserRole]int{
	RoleAttendee: 1,
	RoleStaff:    2,
	RoleAdmin:    3,
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Roles        []UserRole `json:"roles"`
	PushToken    *string    `json:"push_token,omitempty"`
	PushGroup    string     `json:"push_group"`
}

// DeviceToken is one push-capable address from the token directory.
type DeviceToken struct {
	UserID string
	Token  string
	Group  string
}

func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}

// NormalizeRoles removes duplicates and unknown entries.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]bool, len(roles))
	var normalized []UserRole
	for _, role := range roles {
		if !IsValidRole(role) || seen[role] {
			continue
		}
		seen[role] = true
		normalized = append(normalized, role)
	}
	return normalized
}

// EnsureDefaultRole guarantees every user carries at least the attendee role.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	for _, role := range roles {
		if role == RoleAttendee {
			return roles
		}
	}
	return append(roles, RoleAttendee)
}

func HasAtLeast(roles []UserRole, required UserRole) bool {
	need := roleRank[required]
	for _, role := range roles {
		if roleRank[role] >= need {
			return true
		}
	}
	return false
}

func HighestRole(roles []UserRole) UserRole {
	highest := RoleAttendee
	for _, role := range roles {
		if roleRank[role] > roleRank[highest] {
			highest = role
		}
	}
	return highest
}
