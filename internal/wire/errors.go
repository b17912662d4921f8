package wire

import "fmt"

// BadLengthError reports a frame that is too short for its variant, or not of
// the exact length the variant requires.
type BadLengthError struct {
	Field string
	Want  int
	Exact bool
	Got   int
}

func (e *BadLengthError) Error() string {
	qualifier := "at least"
	if e.Exact {
		qualifier = "exactly"
	}
	return fmt.Sprintf("buffer wrong size for %s: must be %s %d bytes, got %d", e.Field, qualifier, e.Want, e.Got)
}

// BadEnumError reports a discriminator byte outside the defined range.
type BadEnumError struct {
	Field string
	Lo    int
	Hi    int
	Got   int
}

func (e *BadEnumError) Error() string {
	return fmt.Sprintf("invalid value of %s: must be %d to %d inclusive, got %d", e.Field, e.Lo, e.Hi, e.Got)
}
