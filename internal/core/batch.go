package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	moderr "github.com/lizzyg/llmbridge/errors"
)

const batchNamePrefix = "batches/"

// BatchName identifies a batch job, e.g. "batches/abc123".
type BatchName struct {
	value string
}

func NewBatchName(value string) (BatchName, error) {
	if !strings.HasPrefix(value, batchNamePrefix) {
		return BatchName{}, fmt.Errorf("%w: %q", moderr.ErrInvalidBatchName, value)
	}
	return BatchName{value: value}, nil
}

func (n BatchName) String() string { return n.value }

func (n BatchName) IsZero() bool { return n.value == "" }

// ID returns the name without the "batches/" prefix.
func (n BatchName) ID() string { return strings.TrimPrefix(n.value, batchNamePrefix) }

type BatchState string

const (
	BatchStateUnspecified BatchState = "BATCH_STATE_UNSPECIFIED"
	BatchStatePending     BatchState = "BATCH_STATE_PENDING"
	BatchStateRunning     BatchState = "BATCH_STATE_RUNNING"
	BatchStateSucceeded   BatchState = "BATCH_STATE_SUCCEEDED"
	BatchStateFailed      BatchState = "BATCH_STATE_FAILED"
	BatchStateCancelled   BatchState = "BATCH_STATE_CANCELLED"
	BatchStateExpired     BatchState = "BATCH_STATE_EXPIRED"
)

// ParseBatchState maps a wire value to a state; unknown values are unspecified.
func ParseBatchState(s string) BatchState {
	switch st := BatchState(s); st {
	case BatchStatePending, BatchStateRunning, BatchStateSucceeded,
		BatchStateFailed, BatchStateCancelled, BatchStateExpired:
		return st
	}
	return BatchStateUnspecified
}

func (s BatchState) IsTerminal() bool {
	switch s {
	case BatchStateSucceeded, BatchStateFailed, BatchStateCancelled, BatchStateExpired:
		return true
	}
	return false
}

func (s BatchState) rank() int {
	switch s {
	case BatchStatePending:
		return 1
	case BatchStateRunning:
		return 2
	case BatchStateUnspecified:
		return 0
	}
	return 3
}

// CanTransitionTo reports whether a job observed in s may later be observed
// in next. States never move backwards and terminal states are final.
// Unspecified carries no information on either side.
func (s BatchState) CanTransitionTo(next BatchState) bool {
	if s == next || s == BatchStateUnspecified || next == BatchStateUnspecified {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// BatchResponse is one of *BatchIncomplete, *BatchSuccess or *BatchError.
type BatchResponse[T any] interface {
	BatchName() BatchName
	BatchState() BatchState
}

// BatchIncomplete is a job that has not reached a terminal state.
type BatchIncomplete[T any] struct {
	Name  BatchName
	State BatchState
}

// BatchItemError reports a single failed request in an otherwise successful batch.
type BatchItemError struct {
	Index   int
	Key     string
	Code    int
	Message string
	Details []map[string]any
}

type BatchSuccess[T any] struct {
	Name      BatchName
	Responses []T
	Errors    []BatchItemError

	// ResponsesFile names the JSONL results file of a file-based job.
	// Listings leave it unread, so Responses only holds inline results.
	ResponsesFile string
}

type BatchError[T any] struct {
	Name    BatchName
	Code    int
	Message string
	State   BatchState
	Details []map[string]any
}

func (b *BatchIncomplete[T]) BatchName() BatchName   { return b.Name }
func (b *BatchIncomplete[T]) BatchState() BatchState { return b.State }
func (b *BatchSuccess[T]) BatchName() BatchName      { return b.Name }
func (b *BatchSuccess[T]) BatchState() BatchState    { return BatchStateSucceeded }
func (b *BatchError[T]) BatchName() BatchName        { return b.Name }
func (b *BatchError[T]) BatchState() BatchState      { return b.State }

func (b *BatchError[T]) Error() string {
	return fmt.Sprintf("batch %s %s: code %d: %s", b.Name, b.State, b.Code, b.Message)
}

type BatchList[T any] struct {
	Responses     []BatchResponse[T]
	NextPageToken string
}

// BatchFileRequest is one line of a file-based batch input.
type BatchFileRequest[T any] struct {
	Key     string `json:"key"`
	Request T      `json:"request"`
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL[T any](w io.Writer, requests []BatchFileRequest[T]) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, r := range requests {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode batch request %d: %w", i, err)
		}
	}
	return nil
}
