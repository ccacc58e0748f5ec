package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "execution.max_iterations")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// getValidator returns a shared validator that reports fields by their
// mapstructure key rather than the Go field name.
func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		structValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return structValidator
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateTags()...)
	errs = append(errs, c.validateRoles()...)
	errs = append(errs, c.validateExecution()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

// validateTags runs the struct-tag rules.
func (c *Config) validateTags() []ValidationError {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "config", Value: nil, Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
			Value:   fe.Value(),
			Message: tagMessage(fe),
		})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// validateRoles checks that plugin roles name a provider and model.
func (c *Config) validateRoles() []ValidationError {
	var errs []ValidationError

	for _, name := range []string{RoleOrchestrator, RoleBackend, RoleFrontend} {
		role := c.Roles.Role(name)
		if role.Source != SourcePlugin {
			continue
		}
		if role.Plugin.Provider == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("roles.%s.plugin.provider", name),
				Value:   role.Plugin.Provider,
				Message: "is required when source is plugin",
			})
		}
		if role.Plugin.Model == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("roles.%s.plugin.model", name),
				Value:   role.Plugin.Model,
				Message: "is required when source is plugin",
			})
		}
		if role.Fallback.Provider != "" && role.Fallback.Model == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("roles.%s.fallback.model", name),
				Value:   role.Fallback.Model,
				Message: "is required when a fallback provider is set",
			})
		}
	}

	return errs
}

// validateExecution checks cross-field execution constraints.
func (c *Config) validateExecution() []ValidationError {
	var errs []ValidationError

	if c.Execution.MaxSubgraphIterations > c.Execution.MaxIterations && c.Execution.MaxIterations > 0 {
		errs = append(errs, ValidationError{
			Field:   "execution.max_subgraph_iterations",
			Value:   c.Execution.MaxSubgraphIterations,
			Message: fmt.Sprintf("must not exceed execution.max_iterations (%d)", c.Execution.MaxIterations),
		})
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errs
}
