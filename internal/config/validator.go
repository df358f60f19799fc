package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report fields by their config key rather than the Go field name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "harness.workers")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// Struct tags cover ranges and enumerations; rules spanning several fields
// are checked afterwards.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTags()...)

	// Validate Snapshot config
	errors = append(errors, c.validateSnapshot()...)

	// Validate Harness config
	errors = append(errors, c.validateHarness()...)

	// Validate Metrics config
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validateTags runs go-playground/validator over the struct tags
func (c *Config) validateTags() []ValidationError {
	err := validate.Struct(c)
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
			Field:   fieldPath(fe.Namespace()),
			Value:   fe.Value(),
			Message: tagMessage(fe),
		})
	}
	return out
}

// fieldPath turns "Config.harness.workers" into "harness.workers"
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// validateSnapshot validates the SnapshotConfig
func (c *Config) validateSnapshot() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Snapshot.Volume) == "" {
		errors = append(errors, ValidationError{
			Field:   "snapshot.volume",
			Value:   c.Snapshot.Volume,
			Message: "is required",
		})
	}

	switch c.Snapshot.Backend {
	case "command":
		if strings.TrimSpace(c.Snapshot.Command) == "" {
			errors = append(errors, ValidationError{
				Field:   "snapshot.command",
				Value:   c.Snapshot.Command,
				Message: "is required when snapshot.backend is \"command\"",
			})
		}
	case "zfs":
		if strings.Contains(c.Snapshot.Volume, "@") {
			errors = append(errors, ValidationError{
				Field:   "snapshot.volume",
				Value:   c.Snapshot.Volume,
				Message: "must name a dataset, not a snapshot (remove the @ suffix)",
			})
		}
	}

	return errors
}

// validateHarness validates the HarnessConfig
func (c *Config) validateHarness() []ValidationError {
	var errors []ValidationError

	if c.Harness.TargetPath != "" && strings.HasSuffix(c.Harness.TargetPath, string(filepath.Separator)) {
		errors = append(errors, ValidationError{
			Field:   "harness.target_path",
			Value:   c.Harness.TargetPath,
			Message: "must name a file, not a directory",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Textfile != "" && !c.Metrics.Enabled {
		errors = append(errors, ValidationError{
			Field:   "metrics.textfile",
			Value:   c.Metrics.Textfile,
			Message: "requires metrics.enabled to be true",
		})
	}

	return errors
}
