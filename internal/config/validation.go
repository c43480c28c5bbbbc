package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags first, then rules spanning several fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	target, err := filepath.Abs(cfg.Target)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	mountpoint, err := filepath.Abs(cfg.Mountpoint)
	if err != nil {
		return fmt.Errorf("mountpoint: %w", err)
	}
	if target == mountpoint {
		return fmt.Errorf("mountpoint: must differ from target %q", cfg.Target)
	}

	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}

	return nil
}

// formatValidationError reports the first failed field in a readable form.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
