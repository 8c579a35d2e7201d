// Package domain contains core domain types for the interview chat.
package domain

// Role identifies the author of a transcript turn.
type Role string

const (
	// RoleUser marks a turn typed by the candidate.
	RoleUser Role = "user"
	// RoleAI marks a turn produced by the interviewer.
	RoleAI Role = "ai"
)

// Service-side role names used on the wire to the interviewer.
const (
	ServiceRoleUser      = "user"
	ServiceRoleAssistant = "assistant"
)

// Message is one turn of the transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is a transcript turn in the interviewer service's vocabulary.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ServiceRole maps a transcript role to the interviewer's role name.
func (r Role) ServiceRole() string {
	if r == RoleAI {
		return ServiceRoleAssistant
	}
	return ServiceRoleUser
}

// ToHistory translates a transcript into the interviewer's history format.
// Order and content are preserved verbatim.
func ToHistory(messages []Message) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		history = append(history, HistoryEntry{
			Role:    m.Role.ServiceRole(),
			Content: m.Content,
		})
	}
	return history
}
