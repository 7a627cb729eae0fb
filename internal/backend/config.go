package backend

import (
	"fmt"

	"finora/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	cfg := Config{
		Type:    BackendType(appConfig.DataBackend),
		Sources: appConfig.Sources(),

		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresDSN:  appConfig.PostgresDSN,
		SeedFile:     appConfig.SeedFile,

		Cache:     CacheMode(appConfig.ForecastCache),
		CacheTTL:  appConfig.ForecastCacheTTL,
		CacheSize: appConfig.ForecastCacheSize,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleForecastSheetName:  appConfig.GoogleForecastSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres backend")
		}
	}

	if c.Cache == "" {
		c.Cache = CacheStore
	}
	if !c.Cache.IsValid() {
		return fmt.Errorf("invalid forecast cache mode: %s", c.Cache)
	}
	if c.Cache == CacheSheets && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for the sheets forecast cache")
	}
	return c.Sources.Validate()
}
