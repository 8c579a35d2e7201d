// Package interviewer is the HTTP client for the remote interviewer service.
package interviewer

import (
	"context"
	"strings"

	"github.com/ashureev/interview-chat/internal/domain"
)

// Request is the body of POST {baseURL}/interview.
type Request struct {
	History       []domain.HistoryEntry `json:"history"`
	QuestionIndex int                   `json:"question_index"`
}

// Reply is the interviewer's next turn.
type Reply struct {
	Text      string
	NextIndex int
	// Concluded is set only when the service sends an explicit flag.
	Concluded *bool
}

// Concludes reports whether the reply ends the interview. An explicit
// concluded flag wins over the marker phrase in the text.
func (r *Reply) Concludes() bool {
	if r.Concluded != nil {
		return *r.Concluded
	}
	return strings.Contains(r.Text, domain.ConclusionMarker)
}

// wireReply mirrors the service JSON. Pointers distinguish missing fields.
type wireReply struct {
	Response          *string `json:"response"`
	NextQuestionIndex *int    `json:"next_question_index"`
	Concluded         *bool   `json:"concluded,omitempty"`
}

// Processor produces the next interviewer turn for a transcript.
type Processor interface {
	Next(ctx context.Context, req Request) (*Reply, error)
}

// Ensure Client implements Processor.
var _ Processor = (*Client)(nil)
