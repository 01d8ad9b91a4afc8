// backend/services/store_master_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/shokudo/rbetl/backend/codec"
	"github.com/shokudo/rbetl/backend/models"
)

// StoreDirectory is the read-only store master: which Restaurant Board
// accounts exist and which of them a run should process.
type StoreDirectory interface {
	ListActiveStores(ctx context.Context) ([]models.StoreConfig, error)
}

// SheetsDirectory reads the store master from a Google Sheet. The sheet is
// operator-owned; rows that fail validation are skipped with a warning so one
// bad row never blocks the rest of the fleet.
type SheetsDirectory struct {
	svc           *sheets.Service
	spreadsheetID string
	readRange     string
}

// NewSheetsDirectory builds the Sheets client with ambient
// application-default credentials.
func NewSheetsDirectory(ctx context.Context, spreadsheetID, readRange string) (*SheetsDirectory, error) {
	svc, err := sheets.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsDirectory{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

func (d *SheetsDirectory) ListActiveStores(ctx context.Context) ([]models.StoreConfig, error) {
	resp, err := d.svc.Spreadsheets.Values.Get(d.spreadsheetID, d.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read store master sheet %s: %w", d.spreadsheetID, err)
	}
	if len(resp.Values) < 2 {
		log.Println("WARN StoreMaster: sheet has no data rows")
		return nil, nil
	}

	header := make([]string, 0, len(resp.Values[0]))
	for _, cell := range resp.Values[0] {
		header = append(header, strings.TrimSpace(fmt.Sprint(cell)))
	}

	var stores []models.StoreConfig
	for i, raw := range resp.Values[1:] {
		row := make(codec.FieldMap, len(header))
		for j, name := range header {
			if j < len(raw) {
				row[name] = strings.TrimSpace(fmt.Sprint(raw[j]))
			} else {
				row[name] = ""
			}
		}
		store, ok := storeFromRow(row, i+2)
		if ok {
			stores = append(stores, store)
		}
	}
	return filterActive(stores), nil
}

// CSVDirectory reads the store master from a local CSV file with the same
// columns as the sheet. Development and air-gapped fallback.
type CSVDirectory struct {
	path string
}

func NewCSVDirectory(path string) *CSVDirectory {
	return &CSVDirectory{path: path}
}

func (d *CSVDirectory) ListActiveStores(_ context.Context) ([]models.StoreConfig, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store master file %s: %w", d.path, err)
	}
	rows, err := codec.ParseRawTable(codec.DecodeJapanese(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse store master file %s: %w", d.path, err)
	}

	var stores []models.StoreConfig
	for i, row := range rows {
		store, ok := storeFromRow(row, i+2)
		if ok {
			stores = append(stores, store)
		}
	}
	return filterActive(stores), nil
}

// storeFromRow maps one store-master row to a StoreConfig, reporting the
// 1-based sheet line for operator-facing warnings.
func storeFromRow(row codec.FieldMap, line int) (models.StoreConfig, bool) {
	store := models.StoreConfig{
		StoreID:   row.Get("store_id"),
		StoreName: row.Get("store_name"),
		Username:  row.Get("rb_username"),
		Password:  row.Get("rb_password"),
		FromDate:  row.Get("from_date"),
		ToDate:    row.Get("to_date"),
		Note:      row.Get("note"),
		Active:    parseBool(row.Get("active")),
	}
	if v := row.Get("days_back"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("WARN StoreMaster: row %d has bad days_back %q, using default", line, v)
		} else {
			store.DaysBack = n
		}
	}
	// Inactive rows are kept as-is for the count and filtered later; only
	// rows a run would actually process have to validate.
	if store.Active {
		if err := store.Validate(); err != nil {
			log.Printf("WARN StoreMaster: skipping row %d: %v", line, err)
			return models.StoreConfig{}, false
		}
	}
	return store, true
}

func filterActive(stores []models.StoreConfig) []models.StoreConfig {
	active := make([]models.StoreConfig, 0, len(stores))
	for _, s := range stores {
		if s.Active {
			active = append(active, s)
		}
	}
	log.Printf("StoreMaster: %d active stores of %d valid rows", len(active), len(stores))
	return active
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "有効":
		return true
	}
	return false
}
