/*
Package config loads the server's YAML configuration.

PURPOSE:
  Holds the deployment-tunable knobs: HTTP bind address, database path,
  and the rota shape the validator enforces by default. Everything has a
  sensible default so the server runs with no config file at all; a file
  only overrides what it names.

FILE DISCOVERY:
  Load() looks for roster_config.yaml in the working directory. A missing
  file is not an error - defaults apply. A present-but-invalid file is.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file Load searches for.
const DefaultFileName = "roster_config.yaml"

// Rota declares the standing shape of a built month and the compliance
// floors the validator holds it to.
type Rota struct {
	DayCallsPerDay    int      `yaml:"dayCallsPerDay" validate:"min=0,max=10"`
	NightCallsPerDay  int      `yaml:"nightCallsPerDay" validate:"min=0,max=10"`
	MaxDutyHours      float64  `yaml:"maxDutyHours" validate:"gt=0"`
	MinDailyRestHours int      `yaml:"minDailyRestHours" validate:"min=0"`
	WeeklyRestHours   int      `yaml:"weeklyRestHours" validate:"min=0"`
	FairnessTolerance int      `yaml:"fairnessTolerance" validate:"min=0"`
	PoolRoles         []string `yaml:"poolRoles" validate:"min=1,dive,required"`
}

// Config represents the application configuration.
type Config struct {
	Addr   string `yaml:"addr" validate:"required"`
	DBPath string `yaml:"dbPath" validate:"required"`
	Rota   Rota   `yaml:"rota"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the configuration used when no file is present: one
// night of cover per day, EWTD floors, NCHD pool.
func Default() *Config {
	return &Config{
		Addr:   ":8080",
		DBPath: "roster.db",
		Rota: Rota{
			DayCallsPerDay:    0,
			NightCallsPerDay:  1,
			MaxDutyHours:      24,
			MinDailyRestHours: 11,
			WeeklyRestHours:   24,
			FairnessTolerance: 2,
			PoolRoles:         []string{"nchd"},
		},
	}
}

// Load reads DefaultFileName from the working directory. A missing file
// yields Default() with no error.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(DefaultFileName)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFromPath loads and validates the configuration from a specific
// path. File values are merged over the defaults, so a partial file is
// valid.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration struct.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
