package user

import "time"

type Role string

const (
	RoleRequester Role = "requester"
	RoleHelper    Role = "helper"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleRequester, RoleHelper, RoleAdmin:
		return true
	default:
		return false
	}
}

type User struct {
	ID           int64     `db:"id" json:"id"`
	Login        string    `db:"login" json:"login"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
