package inventory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds inventory configuration. It is fixed for the lifetime of an Inventory.
type Config struct {
	// MaxPerBoxType caps the number of boxes held for a single box type.
	// Supplies beyond the cap are rejected. Default is 50.
	MaxPerBoxType int `validate:"gte=1"`

	// MaxDivides is the maximum number of box types a single purchase may
	// consume. Default is 3.
	MaxDivides int `validate:"gte=1"`

	// FitTolerance bounds how much larger than requested a matched dimension
	// may be. A match is accepted when requested <= matched <= requested*FitTolerance.
	// Default is 1.5.
	FitTolerance float64 `validate:"gte=1"`

	// TTL is how long a box type stays in stock after it was last touched.
	// Default is 24 hours.
	TTL time.Duration `validate:"gt=0"`

	// TouchOnAccess re-arms a box type's expiration whenever it is supplied
	// or purchased. When false only the first supply sets the expiration.
	TouchOnAccess bool

	// Logger for inventory events.
	Logger *slog.Logger `validate:"-"`

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time `validate:"-"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerBoxType: 50,
		MaxDivides:    3,
		FitTolerance:  1.5,
		TTL:           24 * time.Hour,
		Logger:        slog.Default(),
		Now:           time.Now,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid inventory config: %w", err)
	}
	return nil
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxPerBoxType == 0 {
		c.MaxPerBoxType = def.MaxPerBoxType
	}
	if c.MaxDivides == 0 {
		c.MaxDivides = def.MaxDivides
	}
	if c.FitTolerance == 0 {
		c.FitTolerance = def.FitTolerance
	}
	if c.TTL == 0 {
		c.TTL = def.TTL
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}
