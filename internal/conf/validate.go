// validate.go: validation of the loaded settings.
package conf

import (
	"fmt"
	"strconv"
	"time"

	"github.com/isotrace/isotrace-go/internal/errors"
)

// ValidateSettings checks the loaded settings for invalid combinations
// and out-of-range values. All problems are reported together.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if err := validateOutputSettings(&settings.Output); err != nil {
		errs = append(errs, err)
	}
	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		errs = append(errs, err)
	}
	if err := validateEngineSettings(&settings.Engine); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateOutputSettings(output *OutputSettings) error {
	if !output.SQLite.Enabled && !output.MySQL.Enabled {
		return fmt.Errorf("no database backend enabled, enable either SQLite or MySQL")
	}
	if output.SQLite.Enabled && output.MySQL.Enabled {
		return fmt.Errorf("both SQLite and MySQL enabled, enable only one backend")
	}
	if output.SQLite.Enabled && output.SQLite.Path == "" {
		return fmt.Errorf("SQLite enabled but path is empty")
	}
	if output.MySQL.Enabled {
		if output.MySQL.Host == "" || output.MySQL.Database == "" {
			return fmt.Errorf("MySQL enabled but host or database is empty")
		}
		if _, err := strconv.Atoi(output.MySQL.Port); err != nil {
			return fmt.Errorf("invalid MySQL port %q: %w", output.MySQL.Port, err)
		}
	}
	return nil
}

func validateWebServerSettings(webserver *WebServerSettings) error {
	if !webserver.Enabled {
		return nil
	}
	port, err := strconv.Atoi(webserver.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid web server port %q", webserver.Port)
	}
	return nil
}

func validateEngineSettings(engine *EngineSettings) error {
	if engine.CacheTTL < 0 {
		return fmt.Errorf("engine cache TTL must not be negative, got %d", engine.CacheTTL)
	}
	if engine.DefaultPageSize < 1 {
		return fmt.Errorf("engine default page size must be at least 1, got %d", engine.DefaultPageSize)
	}
	if engine.MaxPageSize < engine.DefaultPageSize {
		return fmt.Errorf("engine max page size %d is below default page size %d",
			engine.MaxPageSize, engine.DefaultPageSize)
	}
	if _, err := time.LoadLocation(engine.Timezone); err != nil {
		return fmt.Errorf("invalid engine timezone %q: %w", engine.Timezone, err)
	}
	return nil
}

// RollupLocation returns the canonical timezone for daily rollups.
// Falls back to UTC if the configured zone cannot be loaded.
func (s *Settings) RollupLocation() *time.Location {
	loc, err := time.LoadLocation(s.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
