package errors

import "errors"

var (
	ErrNoMatchingModel        = errors.New("no matching model found")
	ErrStructuredOutput       = errors.New("structured output required but invalid")
	ErrUnknownProvider        = errors.New("unknown provider")
	ErrUnsupportedOperation   = errors.New("operation not supported by provider")
	ErrInvalidBatchName       = errors.New("batch name must start with \"batches/\"")
	ErrUnsupportedSchema      = errors.New("unsupported schema element")
	ErrUnsupportedContent     = errors.New("unsupported content")
	ErrNoCandidates           = errors.New("model returned no candidates")
	ErrNoImage                = errors.New("model response contained no image")
	ErrContentBlocked         = errors.New("prompt blocked by model safety filters")
	ErrSessionClosed          = errors.New("live session closed")
	ErrIllegalBatchTransition = errors.New("illegal batch state transition")
	ErrUploadFailed           = errors.New("file upload failed")
	ErrInvalidConfig          = errors.New("invalid configuration")
)
