// source/csv_source.go
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jszwec/csvutil"

	"github.com/petshop/backend/models"
)

// DayCount is one row of a day-level download dump:
//
//	day,package_name,downloads
//	2024-03-01,requests,120
type DayCount struct {
	Day         string `csv:"day"`
	PackageName string `csv:"package_name"`
	Downloads   int64  `csv:"downloads"`
}

// CSVSource reads counts from a local dump instead of BigQuery. Each window
// reads the file and sums the rows whose day falls inside it, per name.
type CSVSource struct {
	path   string
	logger *log.Logger
}

func NewCSVSource(path string, logger *log.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger.WithPrefix("csv")}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) CountByName(ctx context.Context, start, end time.Time) (iter.Seq2[models.CountRecord, error], error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open count dump: %w", err)
	}
	defer file.Close()

	records, err := AggregateDayCounts(ctx, file, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	s.logger.Debug("aggregated window", "start", start, "end", end, "packages", len(records))
	return Records(records), nil
}

// AggregateDayCounts decodes a dump and sums downloads per package name for
// the rows with start <= day < end. Names keep the order of first appearance.
func AggregateDayCounts(ctx context.Context, r io.Reader, start, end time.Time) ([]models.CountRecord, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}

	index := make(map[string]int)
	var records []models.CountRecord
	for line := 2; ; line++ {
		var row DayCount
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		day, err := parseDay(row.Day)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if day.Before(start) || !day.Before(end) {
			continue
		}

		if i, ok := index[row.PackageName]; ok {
			records[i].Downloads += row.Downloads
			continue
		}
		index[row.PackageName] = len(records)
		records = append(records, models.CountRecord{PackageName: row.PackageName, Downloads: row.Downloads})
	}
	return records, nil
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid day %q", s)
}
