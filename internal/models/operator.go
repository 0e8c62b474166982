package models

import "github.com/google/uuid"

// OperatorRole distinguishes who triggered a pipeline operation. Permission
// checks (course affiliation etc.) happen in the caller layer; the pipeline
// only needs to know whether a trigger is the student acting on their own
// data or a staff member.
type OperatorRole string

const (
	RoleStudent OperatorRole = "student"
	RoleStaff   OperatorRole = "staff"
)

// Valid reports whether the role is a member of the closed enum.
func (r OperatorRole) Valid() bool {
	return r == RoleStudent || r == RoleStaff
}

// Operator is the authenticated identity on whose behalf a request runs.
// It is resolved by the auth middleware and passed explicitly into service
// calls; services never read identity from ambient state.
type Operator struct {
	ID   uuid.UUID    `json:"id"`
	Role OperatorRole `json:"role"`
}
