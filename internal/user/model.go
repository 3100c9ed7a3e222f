package user

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the slice of the identity record this service reads. Accounts are
// created and managed elsewhere.
type User struct {
	ID    string
	Email string
	Role  Role
}
