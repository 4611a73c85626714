package conversation

import "fmt"

// Phase is the authentication progress of a conversation.
type Phase int

const (
	// PhoneRequest waits for the user's mobile number.
	PhoneRequest Phase = iota
	// OtpVerification waits for the code sent to the candidate number.
	OtpVerification
	// Authenticated forwards every message to the banking chat.
	Authenticated
)

var phaseNames = [...]string{
	PhoneRequest:    "phone_request",
	OtpVerification: "otp_verification",
	Authenticated:   "authenticated",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("conversation: unknown phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}
