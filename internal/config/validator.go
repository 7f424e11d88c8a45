package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.maximum")
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

// ValidBridges returns the bridge names accepted in config
func ValidBridges() []string {
	return []string{"chrome", "firefox", "safari", "remote"}
}

// ValidResetPolicies returns the accepted pool reset policies
func ValidResetPolicies() []string {
	return []string{"none", "blank"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateDriver()...)
	errors = append(errors, c.validateProcess()...)
	errors = append(errors, c.validateCapabilities()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	if c.Bridge != "" && !slices.Contains(ValidBridges(), c.Bridge) {
		errors = append(errors, ValidationError{
			Field:   "bridge",
			Value:   c.Bridge,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBridges(), ", ")),
		})
	}

	if c.Bridge == "remote" && c.Remote.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "remote.url",
			Value:   c.Remote.URL,
			Message: "is required when bridge is remote",
		})
	}

	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "remote.url",
				Value:   c.Remote.URL,
				Message: "must be an absolute http(s) URL",
			})
		}
	}

	if c.Remote.Concurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "remote.concurrency",
			Value:   c.Remote.Concurrency,
			Message: "must be non-negative (0 = unbounded)",
		})
	}

	return errors
}

func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.Minimum < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.minimum",
			Value:   c.Pool.Minimum,
			Message: "must be non-negative",
		})
	}

	if c.Pool.Maximum < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.maximum",
			Value:   c.Pool.Maximum,
			Message: "must be non-negative (0 = unbounded)",
		})
	}

	if c.Pool.Maximum > 0 && c.Pool.Minimum > c.Pool.Maximum {
		errors = append(errors, ValidationError{
			Field:   "pool.minimum",
			Value:   c.Pool.Minimum,
			Message: fmt.Sprintf("must not exceed pool.maximum (%d)", c.Pool.Maximum),
		})
	}

	if c.Pool.ResetPolicy != "" && !slices.Contains(ValidResetPolicies(), c.Pool.ResetPolicy) {
		errors = append(errors, ValidationError{
			Field:   "pool.reset_policy",
			Value:   c.Pool.ResetPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidResetPolicies(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateDriver() []ValidationError {
	var errors []ValidationError

	if c.Driver.StartRetries <= 0 {
		errors = append(errors, ValidationError{
			Field:   "driver.start_retries",
			Value:   c.Driver.StartRetries,
			Message: "must be positive",
		})
	}

	if c.Driver.RetryDelay <= 0 {
		errors = append(errors, ValidationError{
			Field:   "driver.retry_delay",
			Value:   c.Driver.RetryDelay,
			Message: "must be positive",
		})
	}

	if c.Driver.MaxRetryDelay < c.Driver.RetryDelay {
		errors = append(errors, ValidationError{
			Field:   "driver.max_retry_delay",
			Value:   c.Driver.MaxRetryDelay,
			Message: fmt.Sprintf("must be at least driver.retry_delay (%v)", c.Driver.RetryDelay),
		})
	}

	return errors
}

func (c *Config) validateProcess() []ValidationError {
	if c.Process.GracePeriod <= 0 {
		return []ValidationError{{
			Field:   "process.grace_period",
			Value:   c.Process.GracePeriod,
			Message: "must be positive",
		}}
	}
	return nil
}

func (c *Config) validateCapabilities() []ValidationError {
	var errors []ValidationError
	for i, o := range c.Capabilities {
		if strings.TrimSpace(o.Path) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("capabilities[%d].path", i),
				Value:   o.Path,
				Message: "must not be empty",
			})
		}
	}
	return errors
}

func (c *Config) validateLogging() []ValidationError {
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}
