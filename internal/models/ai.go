package models

// RAGOptions tune a single reflection-coaching generation.
type RAGOptions struct {
	PromptID    string   `json:"promptId,omitempty" validate:"omitempty,max=100"`
	Model       string   `json:"model,omitempty" validate:"omitempty,max=100"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"maxTokens,omitempty" validate:"omitempty,gte=1,lte=4096"`
}

// RAGRequest is the body of POST /ai/rag.
type RAGRequest struct {
	Text     string     `json:"text"`
	Question string     `json:"question,omitempty" validate:"max=1000"`
	Memories []string   `json:"memories,omitempty" validate:"max=50"`
	Options  RAGOptions `json:"options"`
}

// RAGResponse is the success body of POST /ai/rag.
type RAGResponse struct {
	OK         bool        `json:"ok"`
	Suggestion string      `json:"suggestion"`
	Metadata   RAGMetadata `json:"metadata"`
}

// RAGMetadata describes how a suggestion was produced.
type RAGMetadata struct {
	PromptUsed string `json:"promptUsed"`
}

// EmbedRequest is the body of POST /ai/embed.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is the success body of POST /ai/embed.
type EmbedResponse struct {
	OK        bool      `json:"ok"`
	Embedding []float64 `json:"embedding"`
}

// PromptTemplate is a named system/user prompt pair.
type PromptTemplate struct {
	ID          string `json:"id" yaml:"-"`
	Description string `json:"description,omitempty" yaml:"description"`
	System      string `json:"system" yaml:"system"`
	Template    string `json:"template" yaml:"template"`
	// Questions are the reflection prompts shown to the user before generation.
	Questions []string `json:"questions,omitempty" yaml:"questions"`
}
