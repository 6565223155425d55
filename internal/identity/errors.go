package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse marks a body that is not JSON.
	ErrMalformedResponse = errors.New("malformed identity response")

	// ErrMissingEmail marks a JSON body without a usable email field.
	ErrMissingEmail = errors.New("identity response has no email")

	// ErrResponseTooLarge marks a body over the read limit.
	ErrResponseTooLarge = errors.New("identity response too large")
)

// Attempt is the diagnostic record of one failed request.
type Attempt struct {
	Number     int
	StatusCode int // 0 when no response was received
	Reason     string
	Body       string
}

func (a Attempt) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "There was a problem getting a test identity -- attempt %d: %s", a.Number, a.Reason)
	if a.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", a.StatusCode)
	}
	if a.Body != "" {
		b.WriteString("\n")
		b.WriteString(a.Body)
	}
	return b.String()
}

// TransientFetchError is a retryable failure of a single attempt.
type TransientFetchError struct {
	Attempt Attempt
	Err     error
}

func (e *TransientFetchError) Error() string {
	return e.Attempt.String()
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// FetchExhaustedError is returned once every attempt has failed. It carries
// the diagnostic trail of all attempts in order.
type FetchExhaustedError struct {
	URL      string
	Attempts []Attempt
}

func (e *FetchExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to get a test identity from %s after %d attempts", e.URL, len(e.Attempts))
	for _, a := range e.Attempts {
		b.WriteString("\n")
		b.WriteString(a.String())
	}
	return b.String()
}
