package models

import "time"

type Role string

const (
	RoleBorrower Role = "borrower"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// RoleRecord is the authorization metadata the backend keeps per email.
type RoleRecord struct {
	Role          Role   `json:"role"`
	Status        Status `json:"status"`
	SuspendReason string `json:"suspendReason,omitempty"`
}

func (r *RoleRecord) Clone() *RoleRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (r *RoleRecord) Suspended() bool {
	return r != nil && r.Status == StatusSuspended
}

// SelfServiceRole reports whether a role may be chosen at registration.
func SelfServiceRole(r Role) bool {
	return r == RoleBorrower || r == RoleManager
}

// UserRecord is the backend user document.
type UserRecord struct {
	ID            string    `json:"_id,omitempty"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	PhotoURL      string    `json:"image,omitempty"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	SuspendReason string    `json:"suspendReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// AdminUpdate is the body of an admin role/status mutation.
type AdminUpdate struct {
	Role          Role   `json:"role,omitempty"`
	Status        Status `json:"status,omitempty"`
	SuspendReason string `json:"suspendReason,omitempty"`
}
