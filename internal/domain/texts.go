package domain

// Greeting seeds every new session as the first interviewer turn.
const Greeting = "Hello! I am your AI-powered interviewer for the Excel proficiency assessment. " +
	"To start, can you please explain the difference between the SUM and SUMIF functions in Excel?"

// FallbackReply is appended when the interviewer cannot be reached.
const FallbackReply = "Sorry, I am having trouble connecting. Please ensure the backend is running " +
	"and the correct URL is configured. Also, check the console for more details."

// ConclusionMarker in a reply ends the interview. Exact-case substring match.
const ConclusionMarker = "concludes our interview"

// Input placeholders shown by the views.
const (
	PlaceholderOpen  = "Type your answer..."
	PlaceholderEnded = "The interview has ended."
)
