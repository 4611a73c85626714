package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestUser_Fields(t *testing.T) {
	typ := reflect.TypeOf(User{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "MobileNo", "uniqueIndex")
	assertGormTag(t, typ, "MobileNo", "not null")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "Active", "default:true")

	assertFieldType(t, typ, "ID", "string")
	assertFieldType(t, typ, "MobileOTPExpires", "*time.Time")
}

func TestChatSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(ChatSession{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "SessionName", "default:Untitled Session")
	assertGormTag(t, typ, "Language", "default:en")
	assertGormTag(t, typ, "SessionFeedbackText", "type:text")
	assertGormTag(t, typ, "EndedAt", "index")

	assertFieldType(t, typ, "SessionFeedbackRating", "*int")
	assertFieldType(t, typ, "StartedAt", "time.Time")
	assertFieldType(t, typ, "EndedAt", "*time.Time")
}

func TestChatSession_Relations(t *testing.T) {
	typ := reflect.TypeOf(ChatSession{})

	assertGormTag(t, typ, "User", "foreignKey:UserID")
	assertGormTag(t, typ, "Messages", "foreignKey:SessionID")

	assertFieldType(t, typ, "User", "*models.User")
	assertFieldType(t, typ, "Messages", "[]models.SessionMessage")
}

func TestSessionMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(SessionMessage{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "SessionID", "not null")
	assertGormTag(t, typ, "SessionID", "index")
	assertGormTag(t, typ, "Question", "type:text")
	assertGormTag(t, typ, "Answer", "type:text")
	assertGormTag(t, typ, "Feedback", "default:0")

	assertFieldType(t, typ, "Sequence", "int")
	assertFieldType(t, typ, "Feedback", "int")
}

func TestUnansweredQuestion_Fields(t *testing.T) {
	typ := reflect.TypeOf(UnansweredQuestion{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "MobileNo", "not null")
	assertGormTag(t, typ, "Question", "type:text")
	assertGormTag(t, typ, "NotifyUser", "default:false")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "Status", "index")

	assertFieldType(t, typ, "AnsweredAt", "*time.Time")
	assertFieldType(t, typ, "AskedAt", "time.Time")
}

func TestWorkerLog_Fields(t *testing.T) {
	typ := reflect.TypeOf(WorkerLog{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "PID", "index")
	assertGormTag(t, typ, "Stream", "size:4")
	assertGormTag(t, typ, "Content", "type:text")
}

func TestChatSession_Instantiation(t *testing.T) {
	now := time.Now()
	rating := 4
	s := ChatSession{
		ID:                    "6f1c",
		UserID:                "u-1",
		SessionName:           DefaultSessionName,
		Language:              "hi",
		SessionFeedbackRating: &rating,
		StartedAt:             now,
		Messages: []SessionMessage{
			{SessionID: "6f1c", Sequence: 1, Question: "balance?", Answer: "₹100", Feedback: 1},
		},
	}

	if s.SessionName != "Untitled Session" {
		t.Errorf("SessionName = %q", s.SessionName)
	}
	if *s.SessionFeedbackRating != 4 {
		t.Errorf("SessionFeedbackRating = %d, want 4", *s.SessionFeedbackRating)
	}
	if s.EndedAt != nil {
		t.Error("EndedAt should be nil for an open session")
	}
	if len(s.Messages) != 1 || s.Messages[0].Feedback != 1 {
		t.Errorf("Messages = %+v", s.Messages)
	}
}

func TestUnansweredQuestion_Instantiation(t *testing.T) {
	q := UnansweredQuestion{
		ID:         "q-1",
		MobileNo:   "9876543210",
		Question:   "What is the FD rate for seniors?",
		NotifyUser: true,
		Status:     QuestionPending,
		AskedAt:    time.Now(),
	}

	if q.Status != "pending" {
		t.Errorf("Status = %q, want pending", q.Status)
	}
	if q.AnsweredAt != nil {
		t.Error("AnsweredAt should be nil while pending")
	}
	if QuestionAnswered != "answered" {
		t.Errorf("QuestionAnswered = %q", QuestionAnswered)
	}
}

func TestUser_JSONHidesOTP(t *testing.T) {
	exp := time.Now()
	data, err := json.Marshal(User{ID: "u-1", MobileNo: "9876543210", MobileOTP: "123456", MobileOTPExpires: &exp})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "123456") {
		t.Errorf("OTP leaked into JSON: %s", data)
	}
	if !strings.Contains(string(data), `"mobileNo":"9876543210"`) {
		t.Errorf("JSON = %s", data)
	}
}

func TestChatSession_JSONOmitsUnloadedRelations(t *testing.T) {
	data, err := json.Marshal(ChatSession{ID: "s-1", UserID: "u-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"user"`) || strings.Contains(string(data), `"messages"`) {
		t.Errorf("JSON = %s", data)
	}
}
