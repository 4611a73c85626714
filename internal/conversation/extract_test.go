package conversation

import "testing"

func TestExtractPhone(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"bare", "9876543210", "9876543210", true},
		{"plus91", "+919876543210", "9876543210", true},
		{"plus91 space", "+91 9876543210", "9876543210", true},
		{"plus91 dash", "+91-9876543210", "9876543210", true},
		{"internal space", "98765 43210", "9876543210", true},
		{"internal dashes", "+91-98765-43210", "9876543210", true},
		{"spaced pairs", "98 76 54 32 10", "9876543210", true},
		{"in sentence", "my number is 7012345678, thanks", "7012345678", true},
		{"starts with 6", "6000000000", "6000000000", true},
		{"starts with 5", "5876543210", "", false},
		{"nine digits", "987654321", "", false},
		{"eleven digit run", "98765432101", "", false},
		{"twelve digit run", "919876543210", "", false},
		{"part of account number", "acct 1239876543210", "", false},
		{"double separator", "98765--43210", "", false},
		{"double space", "98765  43210", "", false},
		{"plus without 91", "+9876543210", "", false},
		{"plus other country", "+449876543210", "", false},
		{"no digits", "hello there", "", false},
		{"otp only", "123456", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPhone(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractPhone(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExtractPhone_AllFormsNormalizeAlike(t *testing.T) {
	forms := []string{
		"9123456789",
		"+919123456789",
		"+91 9123456789",
		"+91-9123456789",
		"91234 56789",
		"9-1-2-3-4-5-6-7-8-9",
		"call me on +91 91234-56789 please",
	}
	for _, f := range forms {
		got, ok := ExtractPhone(f)
		if !ok || got != "9123456789" {
			t.Errorf("ExtractPhone(%q) = (%q, %v), want 9123456789", f, got, ok)
		}
	}
}

func TestExtractOTP(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"bare", "123456", "123456", true},
		{"in sentence", "Your code is 123456 thanks", "123456", true},
		{"glued to letters", "otp123456ok", "123456", true},
		{"punctuation", "(654321).", "654321", true},
		{"five digits", "12345", "", false},
		{"seven digits", "1234567", "", false},
		{"phone number", "9876543210", "", false},
		{"first of two", "111111 or 222222", "111111", true},
		{"no digits", "what is my otp", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractOTP(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractOTP(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestWantsResend(t *testing.T) {
	for text, want := range map[string]bool{
		"please resend":        true,
		"Resend OTP":           true,
		"can you send again":   true,
		"I need a new code":    true,
		"123456":               false,
		"I did not get it yet": false,
	} {
		if got := wantsResend(text); got != want {
			t.Errorf("wantsResend(%q) = %v, want %v", text, got, want)
		}
	}
}
