package enums

import "fmt"

// AdminRole represents an operator permission level.
type AdminRole string

const (
	AdminRoleAdmin AdminRole = "admin"
)

func (r AdminRole) String() string {
	return string(r)
}

func (r AdminRole) IsValid() bool {
	return r == AdminRoleAdmin
}

// ParseAdminRole converts raw input into an AdminRole.
func ParseAdminRole(value string) (AdminRole, error) {
	if AdminRole(value).IsValid() {
		return AdminRole(value), nil
	}
	return "", fmt.Errorf("invalid admin role %q", value)
}
