package models

import "strings"

// Role is the closed set of actor roles. Values are validated once at the
// boundary with ParseRole and carried as typed values afterwards.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleCustomer:
		return true
	}
	return false
}

// ParseRole accepts any letter case and surrounding whitespace.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// UserStatus gates whether a user may act at all.
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
	StatusLocked   UserStatus = "locked"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusLocked:
		return true
	}
	return false
}

func ParseUserStatus(s string) (UserStatus, bool) {
	st := UserStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}
