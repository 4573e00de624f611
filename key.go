// Package boxstock tracks an inventory of rectangular boxes keyed by bottom size and height.
package boxstock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxDimension is the largest accepted bottom size or height.
const MaxDimension = 30

// ErrInvalidDimensions is returned when a bottom size or height is outside (0, MaxDimension].
var ErrInvalidDimensions = errors.New("invalid box dimensions")

// Key identifies a box type by its bottom size and height.
type Key struct {
	Bottom float64
	Height float64
}

// NewKey returns a Key for the given dimensions.
func NewKey(bottom, height float64) Key {
	return Key{Bottom: bottom, Height: height}
}

// ValidDimension reports whether d is within (0, MaxDimension]. NaN is never valid.
func ValidDimension(d float64) bool {
	return d > 0 && d <= MaxDimension
}

// Validate returns ErrInvalidDimensions if either dimension is out of range.
func (k Key) Validate() error {
	if !ValidDimension(k.Bottom) || !ValidDimension(k.Height) {
		return fmt.Errorf("%w: bottom size %g, height %g", ErrInvalidDimensions, k.Bottom, k.Height)
	}
	return nil
}

// String returns a human readable representation of the key.
func (k Key) String() string {
	return fmt.Sprintf("bottom=%g height=%g", k.Bottom, k.Height)
}

// MarshalText implements encoding.TextMarshaler using the "bottom x height" form.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(k.Bottom, 'g', -1, 64) + "x" + strconv.FormatFloat(k.Height, 'g', -1, 64)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses a key in the "bottom x height" form, e.g. "12.5x20".
// The parsed key is validated.
func ParseKey(s string) (Key, error) {
	bottomStr, heightStr, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return Key{}, fmt.Errorf("invalid key %q: expected <bottom>x<height>", s)
	}
	bottom, err := strconv.ParseFloat(strings.TrimSpace(bottomStr), 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid bottom size %q: %w", bottomStr, err)
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(heightStr), 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid height %q: %w", heightStr, err)
	}
	k := Key{Bottom: bottom, Height: height}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}
