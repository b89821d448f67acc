package pipeline

import (
	"context"
	"fmt"

	"github.com/psantana5/regionocr/pkg/models"
)

// Recognizer turns one region of a job's image into text. Implementations
// must be safe for concurrent use when the runner concurrency is above 1.
type Recognizer interface {
	Recognize(ctx context.Context, job *models.Job, region models.Region) (string, error)
}

// MockRecognizer returns a fixed marker string per region
type MockRecognizer struct{}

// MockPrefix starts every text produced by MockRecognizer
const MockPrefix = "[MOCK OCR]"

func (MockRecognizer) Recognize(ctx context.Context, job *models.Job, region models.Region) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s 영역 텍스트", MockPrefix, region.ID), nil
}
