package application

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-tribunal/infrastructure/judging"
)

// modelPattern matches "provider/model" with an optional "@version" suffix.
var modelPattern = regexp.MustCompile(`^[a-z0-9]+/[A-Za-z0-9\-_.]+(@[A-Za-z0-9\-_.]+)?$`)

// RegisterConfigValidators registers the engine's custom validation tags
// with v.
// RegisterConfigValidators adds modelformat for "provider/model" strings
// and failpolicy for panel failure policies.
// RegisterConfigValidators returns an error if any registration fails.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	if err := v.RegisterValidation("failpolicy", validateFailurePolicy); err != nil {
		return fmt.Errorf("failed to register failpolicy validator: %w", err)
	}
	return nil
}

// validateModelFormat validates "provider/model[@version]". An empty value
// passes; pair with required where a model is mandatory.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	return modelPattern.MatchString(model)
}

func validateFailurePolicy(fl validator.FieldLevel) bool {
	switch judging.FailurePolicy(fl.Field().String()) {
	case judging.PolicyStrict, judging.PolicyQuorum:
		return true
	default:
		return false
	}
}
