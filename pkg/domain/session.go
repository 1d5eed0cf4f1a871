package domain

// Session is the resolved identity driving authorization and view scoping.
type Session struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Valid reports whether the session names a user with a known role.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Role.Valid()
}
