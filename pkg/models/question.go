package models

import (
	"fmt"
	"time"
)

// Question is a single benchmark question as read from input.
type Question struct {
	ID       string `json:"task_id" yaml:"task_id"`
	Text     string `json:"question" yaml:"question"`
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
}

// Status is the terminal outcome of processing a question.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind classifies a failed answer attempt.
type ErrorKind string

const (
	KindToolUnavailable ErrorKind = "tool_unavailable"
	KindInvocationError ErrorKind = "invocation_error"
	KindTimeout         ErrorKind = "timeout"
)

// AnswerRecord is the persisted outcome of processing one question.
type AnswerRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Answer      string    `json:"answer"`
	Tool        string    `json:"tool"`
	Status      Status    `json:"status"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Failed reports whether the record holds an error instead of an answer.
func (r AnswerRecord) Failed() bool {
	return r.Status == StatusError
}

// SameContent reports whether two records carry the same outcome.
// CreatedAt is ignored so a recomputed identical answer compares equal.
func (r AnswerRecord) SameContent(o AnswerRecord) bool {
	return r.Fingerprint == o.Fingerprint &&
		r.Answer == o.Answer &&
		r.Tool == o.Tool &&
		r.Status == o.Status &&
		r.ErrorKind == o.ErrorKind &&
		r.Error == o.Error
}

// Display returns the text shown in place of an answer.
func (r AnswerRecord) Display() string {
	if r.Failed() {
		return fmt.Sprintf("ERROR(%s): %s", r.ErrorKind, r.Error)
	}
	return r.Answer
}

// ToolError is the typed failure returned by tools and the router.
type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Tool == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Kind, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Progress is emitted after each batch completes.
type Progress struct {
	RunID       string         `json:"run_id"`
	Batch       int            `json:"batch"`
	Batches     int            `json:"batches"`
	Completed   int            `json:"completed"`
	Total       int            `json:"total"`
	BatchErrors []AnswerRecord `json:"batch_errors,omitempty"`
}
