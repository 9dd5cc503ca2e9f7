package models

// UserRole represents the roles issued by the identity provider.
type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleSupervisor  UserRole = "supervisor"
	RoleContributor UserRole = "contributor"
)

// Staff reports whether the role may moderate any archive item.
func (r UserRole) Staff() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
