package token

type Type string

const (
	TypeAccess Type = "access"
)

// UserClaims is what an access token says about its bearer.
type UserClaims struct {
	Type     Type
	UserID   int64
	Provider string
	Name     string
	Email    string
}
