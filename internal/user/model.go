package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleEndUser Role = "endUser"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleEndUser:
		return true
	}
	return false
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

type Stats struct {
	TotalUsers   int64
	AdminCount   int64
	EndUserCount int64
}

var (
	ErrUserNotFound      = errors.New("User not found")
	ErrEmailTaken        = errors.New("User with this email already exists")
	ErrIncorrectPassword = errors.New("Incorrect password")
	ErrRoleMismatch      = errors.New("Role mismatch")
	ErrMissingFields     = errors.New("All fields are required")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidID         = errors.New("invalid user id")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrAdminRequired = fmt.Errorf("%w: only an administrator can create admin accounts", ErrForbidden)
)
