package bridge

import (
	"errors"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []any
		want string
	}{
		{"strings", "simple_gemini_chat", []any{"balance?", "s-1", "en"}, `{"func":"simple_gemini_chat","args":["balance?","s-1","en"]}` + "\n"},
		{"nil args", "get_supported_languages", nil, `{"func":"get_supported_languages","args":[]}` + "\n"},
		{"mixed", "f", []any{"a", 1, true}, `{"func":"f","args":["a",1,true]}` + "\n"},
		{"no html escaping", "f", []any{"<b>&</b>"}, `{"func":"f","args":["<b>&</b>"]}` + "\n"},
		{"embedded newline stays escaped", "f", []any{"a\nb"}, `{"func":"f","args":["a\nb"]}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeRequest(tt.fn, tt.args)
			if err != nil {
				t.Fatalf("encodeRequest: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("encodeRequest = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeRequest_Unencodable(t *testing.T) {
	_, err := encodeRequest("f", []any{make(chan int)})
	if err == nil {
		t.Fatal("expected error for unencodable arg")
	}
}

func TestIsResponseLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{`{"x":1}`, true},
		{`[1,2]`, true},
		{`{broken`, true},
		{"loading...", false},
		{"✅ Python bridge ready for requests", false},
		{"", false},
		{"42", false},
		{`"quoted"`, false},
	}
	for _, tt := range tests {
		if got := isResponseLine(tt.line); got != tt.want {
			t.Errorf("isResponseLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"object", `{"response":"ok","intent":"check_balance"}`, false},
		{"array", `[1,2,3]`, false},
		{"unicode", `{"response":"नमस्ते"}`, false},
		{"truncated", `{"response":"ok"`, true},
		{"two values", `{}{}`, true},
		{"trailing garbage", `{"a":1} trailing`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := decodeResponse(tt.line)
			if tt.wantErr {
				var perr *ProtocolError
				if !errors.As(err, &perr) {
					t.Fatalf("err = %v, want *ProtocolError", err)
				}
				if perr.Line != tt.line {
					t.Errorf("ProtocolError.Line = %q, want %q", perr.Line, tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(raw) != tt.line {
				t.Errorf("raw = %s, want %s", raw, tt.line)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "check my balance", "check my balance"},
		{"trim", "  hello \n", "hello"},
		{"nfc compose", "cafe\u0301", "caf\u00e9"},
		{"encoded lone surrogate", "ab\xed\xa0\x80cd", "abcd"},
		{"replacement rune", "a\ufffdb", "ab"},
		{"invalid byte", "a\xffb", "ab"},
		{"devanagari kept", "मेरा बैलेंस", "मेरा बैलेंस"},
		{"emoji kept", "thanks 🙏", "thanks 🙏"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeArgs(t *testing.T) {
	args := []any{" a\ufffd ", 7, []string{"x\xff", " y "}, nil}
	got := sanitizeArgs(args)

	if got[0] != "a" {
		t.Errorf("arg0 = %q, want a", got[0])
	}
	if got[1] != 7 {
		t.Errorf("arg1 = %v, want 7", got[1])
	}
	ss, ok := got[2].([]string)
	if !ok || ss[0] != "x" || ss[1] != "y" {
		t.Errorf("arg2 = %#v", got[2])
	}
	if got[3] != nil {
		t.Errorf("arg3 = %v, want nil", got[3])
	}
	if args[0] != " a\ufffd " {
		t.Error("sanitizeArgs must not modify its input")
	}
}
