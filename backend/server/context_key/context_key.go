package contextKey

// key is unexported so values set here cannot collide with other packages.
type key string

const (
	// UserIDKey holds the authenticated owner id.
	UserIDKey key = "user_id"
	// EmailKey holds the email claim of the token, when the identity provider sends one.
	EmailKey key = "email"
	// RequestIDKey holds the id used to correlate log lines of one request.
	RequestIDKey key = "request_id"
)
