/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads store settings.
//
// Sources, later ones winning:
//   - built-in defaults
//   - an optional YAML file
//   - a `.env` file in the working directory (autoloaded)
//   - BURSAR_* environment variables, "__" separating nested keys:
//     BURSAR_DATABASE__CONNECTION__DBNAME=school -> database.connection.dbname
//
// The result is validated before it is returned.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/tomoncle/bursar/database"
	"github.com/tomoncle/bursar/types"
	"github.com/tomoncle/bursar/utils"
	"github.com/tomoncle/bursar/validation"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "BURSAR_"

type Config struct {
	Database database.Config `json:"database" yaml:"database" koanf:"database"`
	Log      LogConfig       `json:"log" yaml:"log" koanf:"log"`
	Billing  BillingConfig   `json:"billing" yaml:"billing" koanf:"billing"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	Format string `json:"format" yaml:"format" koanf:"format" validate:"omitempty,oneof=text json"`
}

type BillingConfig struct {
	// MaxPageSize bounds every search page.
	MaxPageSize int `json:"max_page_size" yaml:"max_page_size" koanf:"max_page_size" validate:"gte=1,lte=1000"`
	// DefaultDueIn is added to the generation time when a bill has no due date.
	DefaultDueIn time.Duration `json:"default_due_in" yaml:"default_due_in" koanf:"default_due_in" validate:"gte=0"`
	// PaymentReferencePrefix prefixes generated payment references.
	PaymentReferencePrefix string `json:"payment_reference_prefix" yaml:"payment_reference_prefix" koanf:"payment_reference_prefix" validate:"max=16"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Database: *database.DefaultConfig(),
		Log:      LogConfig{Level: "info", Format: "text"},
		Billing: BillingConfig{
			MaxPageSize:            types.MaxPageSize,
			DefaultDueIn:           30 * 24 * time.Hour,
			PaymentReferencePrefix: "PAY-",
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := validation.Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// ApplyLogging configures the utils loggers from c.
func (c LogConfig) ApplyLogging() {
	if c.Format != "" {
		utils.ConfigureConsoleLogFormat(c.Format)
	}
	if c.Level != "" {
		utils.ConfigureLogLevel(c.Level)
	}
}
