package domain

import "fmt"

type ConsentState string

const (
	ConsentOptIn   ConsentState = "optIn"
	ConsentOptOut  ConsentState = "optOut"
	ConsentUnknown ConsentState = "unknown"
)

// ParseConsentState maps stored or user-supplied values onto the enum.
// Anything unrecognized is an error, not a silent default.
func ParseConsentState(s string) (ConsentState, error) {
	switch ConsentState(s) {
	case ConsentOptIn, ConsentOptOut, ConsentUnknown:
		return ConsentState(s), nil
	}
	return "", fmt.Errorf("unknown consent state %q", s)
}

// Granted reports whether events may be submitted under this state.
// Only an explicit opt-in grants; unknown is treated as denial.
func (c ConsentState) Granted() bool {
	return c == ConsentOptIn
}
