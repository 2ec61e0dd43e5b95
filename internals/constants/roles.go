package constants

import "fmt"

// Roles carried in the operator JWT "roles" claim.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleTutor  = "tutor"
	RoleViewer = "viewer"
)

const ErrOnlyOperatorsCanAccess = "only owners or admins may use %s"

func RoleErrorOperator(feature string) string {
	return fmt.Sprintf(ErrOnlyOperatorsCanAccess, feature)
}

var (
	AllRoles = []string{RoleOwner, RoleAdmin, RoleTutor, RoleViewer}

	// OperatorRoles may run scheduling, billing and analytics.
	OperatorRoles = []string{RoleOwner, RoleAdmin}
)
