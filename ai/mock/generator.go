package mock

import (
	"context"
	"strings"
	"sync/atomic"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, answers with the first line of the context.
	GenerateFunc func(ctx context.Context, contextText, message string) (string, error)

	callCount atomic.Int64
}

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns a canned answer derived from the context.
func (m *MockGenerator) Generate(ctx context.Context, contextText, message string) (string, error) {
	m.callCount.Add(1)

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, contextText, message)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if contextText == "" {
		return "I don't know.", nil
	}
	first, _, _ := strings.Cut(contextText, "\n")
	return "Based on the context: " + first, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears call count and custom functions.
func (m *MockGenerator) Reset() {
	m.callCount.Store(0)
	m.GenerateFunc = nil
}
