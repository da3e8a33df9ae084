package gemini

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSafetyBlocked = errors.New("image generation blocked by the safety filter, adjust the description and retry")
	ErrNoResult      = errors.New("model returned no image")
)

// RefusalError is returned when the model answers with text instead of an image.
type RefusalError struct {
	Text string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("model refused: %q", truncate(e.Text, 150))
}

// InterruptedError is returned when a candidate stops for a reason other than STOP.
type InterruptedError struct {
	Reason string
}

func (e *InterruptedError) Error() string {
	return "generation interrupted: " + e.Reason
}

// APIError is a non-2xx response from the Generative Language API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API status=%d body=%s", e.Status, e.Body)
}

func truncate(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}
