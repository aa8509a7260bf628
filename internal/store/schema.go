package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/kjstillabower/climate-api/internal/models"
)

// ErrSchemaMismatch is returned when the dataset lacks a table or column the service reads.
var ErrSchemaMismatch = errors.New("dataset schema mismatch")

type tableRequirement struct {
	model   interface{}
	table   string
	columns []string
}

var requiredSchema = []tableRequirement{
	{model: &models.Observation{}, table: models.Observation{}.TableName(), columns: []string{"date", "station", "prcp", "tobs"}},
	{model: &models.Station{}, table: models.Station{}.TableName(), columns: []string{"station"}},
}

// VerifySchema inspects the existing database and checks that the measurement and
// station tables expose every column the static record types map. Run once at startup.
func VerifySchema(db *gorm.DB) error {
	m := db.Migrator()
	for _, req := range requiredSchema {
		if !m.HasTable(req.model) {
			return fmt.Errorf("%w: table %q not found", ErrSchemaMismatch, req.table)
		}
		cols, err := m.ColumnTypes(req.model)
		if err != nil {
			return fmt.Errorf("inspect table %q: %w", req.table, err)
		}
		have := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			have[strings.ToLower(c.Name())] = struct{}{}
		}
		var missing []string
		for _, want := range req.columns {
			if _, ok := have[want]; !ok {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: table %q missing columns %s", ErrSchemaMismatch, req.table, strings.Join(missing, ", "))
		}
	}
	return nil
}
