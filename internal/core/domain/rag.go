package domain

// MessageRole defines who authored a message in the planning conversation
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single role/content pair in the append-only planning history
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// PassageMetadata is the provenance recorded for a chunk at index-build time.
// A zero value means the sidecar carried no metadata for this entry.
type PassageMetadata struct {
	PageNumber int    `json:"page_number"`
	BookName   string `json:"book_name"`
	Filename   string `json:"filename"`
}

// IsZero reports whether no provenance is known for the passage.
func (m PassageMetadata) IsZero() bool {
	return m.PageNumber == 0 && m.BookName == "" && m.Filename == ""
}

// Passage is a retrieved chunk with its similarity score.
// Score is the inner product of L2-normalized vectors (≈ cosine, [-1, 1]).
type Passage struct {
	Text     string          `json:"text"`
	Score    float64         `json:"score"`
	Metadata PassageMetadata `json:"metadata"`
}

// DecisionKind is the planner's per-turn choice
type DecisionKind string

const (
	DecisionTool   DecisionKind = "tool"
	DecisionAnswer DecisionKind = "answer"
)

// Decision is the parsed planner output. ToolName and ToolArgs are only
// meaningful when Kind is DecisionTool.
type Decision struct {
	Kind     DecisionKind
	ToolName string
	ToolArgs map[string]any
}

// RAGState is the single mutable context threaded through one orchestration
// run. Question and TopK are fixed at init; Passages is replaced by each
// retrieval; Messages is append-only; Answer is set once when the run
// terminates. A state is created per question and discarded afterwards.
type RAGState struct {
	Question  string    `json:"question"`
	TopK      int       `json:"top_k"`
	Passages  []Passage `json:"passages"`
	Answer    string    `json:"answer"`
	ToolCalls int       `json:"tool_calls"`
	Messages  []Message `json:"messages"`
}

// NewRAGState creates a fresh run state with an empty history.
func NewRAGState(question string, topK int) *RAGState {
	return &RAGState{
		Question: question,
		TopK:     topK,
	}
}

// AppendMessage grows the history without mutating earlier entries.
func (s *RAGState) AppendMessage(role MessageRole, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}
