// Package testhelpers builds throwaway SQLite datasets for store and HTTP tests.
package testhelpers

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Schema has the same shape as the measurement and station tables of the Hawaii dataset.
const Schema = `
CREATE TABLE measurement (
  id      INTEGER PRIMARY KEY,
  station TEXT,
  date    TEXT,
  prcp    FLOAT,
  tobs    FLOAT
);
CREATE TABLE station (
  id        INTEGER PRIMARY KEY,
  station   TEXT,
  name      TEXT,
  latitude  FLOAT,
  longitude FLOAT,
  elevation FLOAT
);
`

// SampleRows seeds three stations and six measurements. USC00519397 is the most
// active station (3 rows) and 2017-08-23 is the latest date. 2017-08-18 has a NULL prcp.
const SampleRows = `
INSERT INTO station (station, name) VALUES
  ('USC00519397', 'WAIKIKI 717.2, HI US'),
  ('USC00513117', 'KANEOHE 838.1, HI US'),
  ('USC00519281', 'WAIHEE 837.5, HI US');
INSERT INTO measurement (station, date, prcp, tobs) VALUES
  ('USC00519397', '2016-08-22', 0.40, 76),
  ('USC00519397', '2016-08-23', 0.00, 81),
  ('USC00519281', '2016-08-23', 1.79, 77),
  ('USC00519281', '2017-08-18', NULL, 79),
  ('USC00513117', '2017-08-20', 0.02, 80),
  ('USC00519397', '2017-08-23', 0.00, 81);
`

// WriteDataset creates an on-disk SQLite file under t.TempDir() and returns its path.
// rows may be empty.
func WriteDataset(t testing.TB, schema, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hawaii.sqlite")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("dataset handle: %v", err)
	}
	defer sqlDB.Close()

	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	if rows != "" {
		if err := db.Exec(rows).Error; err != nil {
			t.Fatalf("seed rows: %v", err)
		}
	}
	return path
}
