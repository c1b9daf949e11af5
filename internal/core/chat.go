package core

type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

type ResponseFormatType string

const (
	ResponseFormatText ResponseFormatType = "text"
	ResponseFormatJSON ResponseFormatType = "json"
)

// ResponseFormat selects plain text or JSON output. Schema is optional for JSON.
type ResponseFormat struct {
	Type   ResponseFormatType
	Schema *JSONSchema
}

var (
	TextFormat = ResponseFormat{Type: ResponseFormatText}
	JSONFormat = ResponseFormat{Type: ResponseFormatJSON}
)

// ChatRequest is a provider-neutral chat call. Nil pointer parameters fall
// back to the model defaults from configuration.
type ChatRequest struct {
	ModelName            string
	Messages             []ChatMessage
	ToolSpecifications   []ToolSpecification
	ToolChoice           ToolChoice
	AllowedFunctionNames []string
	ResponseFormat       *ResponseFormat
	Temperature          *float64
	TopP                 *float64
	TopK                 *int
	MaxOutputTokens      *int
	StopSequences        []string
	CandidateCount       *int
	Seed                 *int
	PresencePenalty      *float64
	FrequencyPenalty     *float64
}

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolExecution FinishReason = "tool_execution"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

type TokenUsage struct {
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	CachedTokens   int
	ThoughtsTokens int
}

// Add returns the field-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:    u.InputTokens + other.InputTokens,
		OutputTokens:   u.OutputTokens + other.OutputTokens,
		TotalTokens:    u.TotalTokens + other.TotalTokens,
		CachedTokens:   u.CachedTokens + other.CachedTokens,
		ThoughtsTokens: u.ThoughtsTokens + other.ThoughtsTokens,
	}
}

// GroundingMetadata lists the sources a response was grounded on.
type GroundingMetadata struct {
	WebSearchQueries []string
	Sources          []GroundingSource
	SearchEntryPoint string
}

type GroundingSource struct {
	URI     string
	Title   string
	PlaceID string
}

type ChatResponseMetadata struct {
	ID                string
	ModelName         string
	TokenUsage        TokenUsage
	FinishReason      FinishReason
	GroundingMetadata *GroundingMetadata
}

type ChatResponse struct {
	AIMessage ChatMessage
	Metadata  ChatResponseMetadata
}

// Text returns the text of the AI message.
func (r ChatResponse) Text() string { return r.AIMessage.Text() }

type Embedding struct {
	Vector []float32
}

func (e Embedding) Dimension() int { return len(e.Vector) }

type TextSegment struct {
	Text     string
	Metadata map[string]string
}

func TextSegmentOf(text string) TextSegment { return TextSegment{Text: text} }

type Image struct {
	Base64Data    string
	MimeType      string
	URL           string
	RevisedPrompt string
}

// Response wraps a model result with usage information.
type Response[T any] struct {
	Content      T
	TokenUsage   *TokenUsage
	FinishReason FinishReason
	Metadata     map[string]any
}

// Ptr returns a pointer to v. Handy for optional request parameters.
func Ptr[T any](v T) *T { return &v }
