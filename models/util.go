package models

// ContextKey is a string type used in context.WithValue
type ContextKey string

func (c ContextKey) String() string {
	return string(c)
}

// Context keys set by the auth middleware
const (
	UserIDKey    = ContextKey("user_id")
	UserEmailKey = ContextKey("user_email")
)
