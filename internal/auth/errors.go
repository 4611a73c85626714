package auth

// AuthError reports rejected credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// AuthFailure marks the error as a credential rejection rather than a
// service failure.
func (e *AuthError) AuthFailure() bool { return true }

var (
	// ErrInvalidOTP is returned when the code does not match or has expired.
	ErrInvalidOTP = &AuthError{Reason: "Invalid or expired OTP"}
	// ErrUserNotFound is returned when no user has the mobile number.
	ErrUserNotFound = &AuthError{Reason: "User not found"}
)

// ValidationError reports a request with missing fields. Its message is
// safe to show to users.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string       { return "auth: " + e.Message }
func (e *ValidationError) UserMessage() string { return e.Message }
