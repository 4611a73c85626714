package escalation

import (
	"fmt"
	"strings"

	"github.com/zulandar/bankline/internal/models"
)

// maxQuotedQuestion bounds the question text posted to support channels.
const maxQuotedQuestion = 1500

// formatQuestion renders q as a support-channel message.
func formatQuestion(q *models.UnansweredQuestion) string {
	question := q.Question
	if r := []rune(question); len(r) > maxQuotedQuestion {
		question = string(r[:maxQuotedQuestion]) + "…"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New customer question from %s", q.MobileNo)
	if q.SessionID != "" {
		fmt.Fprintf(&b, " (session %s)", q.SessionID)
	}
	b.WriteString(":\n")
	for _, line := range strings.Split(question, "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Reply with: bankline escalations answer %s \"<answer>\"", q.ID)
	return b.String()
}
