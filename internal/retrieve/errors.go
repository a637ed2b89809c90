package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSoft marks a candidate-local failure; the next candidate may
	// still succeed.
	ErrSoft = errors.New("transfer failed")
	// ErrHard marks a plugin-local fault (broken configuration, missing
	// dependency); only a different plugin can recover.
	ErrHard = errors.New("retriever fault")
	// ErrAbortSoft marks a transfer abandoned because the received
	// content failed verification. Treated like ErrSoft.
	ErrAbortSoft = errors.New("transfer aborted")
	// ErrAbortHard marks an externally requested cancellation. Never
	// retried, never surfaced as an operator alert.
	ErrAbortHard = errors.New("transfer cancelled")
	// ErrNoPlugin reports that no enabled retriever supports a
	// candidate's transport type.
	ErrNoPlugin = errors.New("no eligible retriever")
)

// Wrap builds an error message with retriever context while tagging it with
// the provided marker for later classification. The marker should be one of
// the sentinel errors above.
func Wrap(marker error, retriever, operation, message string, err error) error {
	detail := buildDetail(retriever, operation, message)
	if marker == nil {
		marker = ErrSoft
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsSoft reports whether err abandons only the current candidate.
func IsSoft(err error) bool {
	return errors.Is(err, ErrSoft) || errors.Is(err, ErrAbortSoft)
}

// IsCancelled reports whether err represents external cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrAbortHard) || errors.Is(err, context.Canceled)
}

func buildDetail(retriever, operation, message string) string {
	parts := make([]string, 0, 3)
	if retriever = strings.TrimSpace(retriever); retriever != "" {
		parts = append(parts, retriever)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "retrieve failure"
	}
	return strings.Join(parts, ": ")
}
