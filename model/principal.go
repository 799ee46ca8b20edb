package model

const RoleAdmin = "admin"

// Principal is the acting identity supplied by the session layer.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
