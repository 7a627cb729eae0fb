// Package google reads saved forecasts from a Google Sheets tab.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finora/internal/core"
	"finora/internal/ledger"
	flog "finora/internal/log"
)

// DefaultSheetName is the tab read when none is configured.
const DefaultSheetName = "Forecasts"

// Config selects the spreadsheet and the service account used to read it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type fetchFunc func(ctx context.Context, rng string) ([][]interface{}, error)

// ForecastCache is a read-only ledger.ForecastCache over a sheet with the
// columns Month, ProjectedBalanceCts and ComputedAt.
type ForecastCache struct {
	sheet string
	fetch fetchFunc
}

var _ ledger.ForecastCache = (*ForecastCache)(nil)

// New creates a Sheets-backed forecast cache.
func New(ctx context.Context, cfg Config) (*ForecastCache, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	id := cfg.SpreadsheetID
	fetch := func(ctx context.Context, rng string) ([][]interface{}, error) {
		resp, err := svc.Spreadsheets.Values.Get(id, rng).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).
			Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	}
	return newWithFetch(cfg.SheetName, fetch), nil
}

func newWithFetch(sheet string, fetch fetchFunc) *ForecastCache {
	if strings.TrimSpace(sheet) == "" {
		sheet = DefaultSheetName
	}
	return &ForecastCache{sheet: sheet, fetch: fetch}
}

// newSheetsService initializes a read-only Sheets service from service
// account credentials, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsFile := strings.TrimSpace(cfg.CredentialsFile)
	if cfg.CredentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case cfg.CredentialsJSON != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case credentialsFile != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets forecast cache ready", flog.FieldComponent, flog.ComponentSheets)
	return svc, nil
}

// Lookup reads the whole tab and returns the row for month. Rows without a
// balance are misses.
func (c *ForecastCache) Lookup(ctx context.Context, month core.MonthKey) (core.SavedForecast, bool, error) {
	values, err := c.fetch(ctx, fmt.Sprintf("%s!A:C", c.sheet))
	if err != nil {
		return core.SavedForecast{}, false, fmt.Errorf("read %s: %w", c.sheet, err)
	}
	rows, err := parseForecasts(values)
	if err != nil {
		return core.SavedForecast{}, false, err
	}
	f, ok := rows[month]
	return f, ok, nil
}
