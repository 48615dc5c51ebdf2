package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	errs "poi-tiering/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
			_, err := cron.ParseStandard(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// ConfigValidator collects validation errors
type ConfigValidator struct {
	errors []ValidationError
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{errors: make([]ValidationError, 0)}
}

func (cv *ConfigValidator) AddError(field, value, message string) {
	cv.errors = append(cv.errors, ValidationError{Field: field, Value: value, Message: message})
}

func (cv *ConfigValidator) HasErrors() bool { return len(cv.errors) > 0 }

func (cv *ConfigValidator) GetErrors() []ValidationError { return cv.errors }

func (cv *ConfigValidator) GetErrorsAsString() string {
	var out []string
	for _, err := range cv.errors {
		out = append(out, err.Error())
	}
	return strings.Join(out, "\n")
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	cv := NewConfigValidator()

	c.validateTags(cv)
	c.validateEnvironment(cv)

	if cv.HasErrors() {
		return errs.NewValidation("config.Validate", fmt.Sprintf("configuration validation failed:\n%s", cv.GetErrorsAsString()), nil)
	}
	return nil
}

func (c *Config) validateTags(cv *ConfigValidator) {
	err := GetValidator().Struct(c)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		cv.AddError("config", "", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		cv.AddError(envName(fe.Field()), fmt.Sprint(fe.Value()), translateError(fe))
	}
}

// validateEnvironment performs environment-specific validation
func (c *Config) validateEnvironment(cv *ConfigValidator) {
	if c.Env != "production" {
		return
	}
	if c.DBDialect == "sqlite" {
		cv.AddError("DB_DIALECT", c.DBDialect, "sqlite is not supported in production")
	}
	if c.GoogleMapsAPIKey == "" && c.ProviderGatewayURL == "" {
		cv.AddError("GOOGLE_MAPS_API_KEY", "", "at least one source must be configured in production")
	}
}

var errorMessageTemplates = map[string]string{
	"required":    "%s is required",
	"required_if": "%s is required by the current settings",
	"numeric":     "%s must be numeric",
	"url":         "%s must be a valid URL",
	"cron":        "%s must be a valid cron expression",
}

var errorMessageWithParam = map[string]string{
	"oneof":      "%s must be one of: %s",
	"gte":        "%s must be greater than or equal to %s",
	"lte":        "%s must be less than or equal to %s",
	"gt":         "%s must be greater than %s",
	"ltefield":   "%s must not exceed %s",
	"startswith": "%s must start with %s",
}

func translateError(fe validator.FieldError) string {
	field := envName(fe.Field())
	if tmpl, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// envName maps a Config field to the environment variable that sets it.
func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

var envNames = map[string]string{
	"Env":                    "ENV",
	"Port":                   "PORT",
	"DatabaseURL":            "DATABASE_URL",
	"DBDialect":              "DB_DIALECT",
	"DBMaxOpenConns":         "DB_MAX_OPEN_CONNS",
	"DBMaxIdleConns":         "DB_MAX_IDLE_CONNS",
	"DBReadTimeout":          "DB_READ_TIMEOUT",
	"DBWriteTimeout":         "DB_WRITE_TIMEOUT",
	"GoogleCostPerCall":      "GOOGLE_COST_PER_CALL",
	"ProviderGatewayURL":     "PROVIDER_GATEWAY_URL",
	"ProviderGatewaySources": "PROVIDER_GATEWAY_SOURCES",
	"GatewayCostPerCall":     "GATEWAY_COST_PER_CALL",
	"SourceTimeout":          "SOURCE_TIMEOUT",
	"SourceRPS":              "SOURCE_RPS",
	"SourceBurst":            "SOURCE_BURST",
	"MonthlyBudgetUSD":       "MONTHLY_BUDGET_USD",
	"EventsBackend":          "EVENTS_BACKEND",
	"NATSURL":                "NATS_URL",
	"LogLevel":               "LOG_LEVEL",
	"LogFormat":              "LOG_FORMAT",
	"MetricsPath":            "METRICS_PATH",
	"ScheduleTier1":          "SCHEDULE_TIER1",
	"ScheduleTier2":          "SCHEDULE_TIER2",
	"ScheduleTier3":          "SCHEDULE_TIER3",
	"ScheduleTier4":          "SCHEDULE_TIER4",
	"SchedulerBatchLimit":    "SCHEDULER_BATCH_LIMIT",
}

// GetConfigSummary returns a summary of the configuration without secrets
func (c *Config) GetConfigSummary() map[string]interface{} {
	return map[string]interface{}{
		"env":                 c.Env,
		"port":                c.Port,
		"database_url":        maskString(c.DatabaseURL, 12),
		"db_dialect":          c.DBDialect,
		"google_maps_api_key": maskString(c.GoogleMapsAPIKey, 6),
		"gateway_url":         c.ProviderGatewayURL,
		"gateway_sources":     c.ProviderGatewaySources,
		"monthly_budget_usd":  c.MonthlyBudgetUSD,
		"events_backend":      c.EventsBackend,
		"log_level":           c.LogLevel,
		"log_format":          c.LogFormat,
		"metrics_enabled":     c.MetricsEnabled,
		"scheduler_enabled":   c.SchedulerEnabled,
		"scoring_profile":     c.ScoringProfilePath,
	}
}

// maskString masks sensitive strings for logging/display
func maskString(s string, keepFirst int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}
