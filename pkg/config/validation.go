package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/gopherd/pkg/adapter/gopher"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	if !cfg.Gopher.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if err := gopher.ValidateMapFilename(cfg.Gopher.MapFilename); err != nil {
		return fmt.Errorf("gopher.map_filename: %w", err)
	}

	info, err := os.Stat(cfg.Gopher.Root)
	if err != nil {
		return fmt.Errorf("gopher.root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("gopher.root: %s is not a directory", cfg.Gopher.Root)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
