package tools

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/pario-ai/benchrun/pkg/models"
)

// FileName is the name of the attachment tool.
const FileName = "file"

// Downloader fetches a question's attachment. *scoring.Client implements it.
type Downloader interface {
	DownloadFile(ctx context.Context, taskID string, maxBytes int64) ([]byte, error)
}

// File answers questions about a text attachment by downloading it and
// handing its content to the LLM.
type File struct {
	downloader Downloader
	asker      Asker
	maxBytes   int64
}

// NewFile creates the attachment tool.
func NewFile(d Downloader, asker Asker, maxBytes int64) *File {
	return &File{downloader: d, asker: asker, maxBytes: maxBytes}
}

func (f *File) Name() string { return FileName }

func (f *File) Invoke(ctx context.Context, q models.Question) (string, error) {
	if q.FileName == "" {
		return "", &models.ToolError{Kind: models.KindInvocationError, Tool: FileName, Message: "question has no attachment"}
	}
	if f.downloader == nil || f.asker == nil {
		return "", &models.ToolError{Kind: models.KindToolUnavailable, Tool: FileName, Message: "attachment analysis not configured"}
	}

	data, err := f.downloader.DownloadFile(ctx, q.ID, f.maxBytes)
	if err != nil {
		return "", &models.ToolError{Kind: models.KindInvocationError, Tool: FileName, Message: err.Error(), Err: err}
	}
	if !utf8.Valid(data) {
		return "", &models.ToolError{
			Kind:    models.KindToolUnavailable,
			Tool:    FileName,
			Message: fmt.Sprintf("%s is not a text file", q.FileName),
		}
	}

	prompt := fmt.Sprintf("Attached file %q:\n\n%s\n\nUsing the file, answer: %s", q.FileName, data, q.Text)
	return f.asker.Ask(ctx, prompt)
}
