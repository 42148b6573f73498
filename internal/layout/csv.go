package layout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WriteCSV writes coordinates as headerless "x,y" rows in meters at
// coordPrecision decimals, the interchange layout station files use.
func WriteCSV(w io.Writer, coords []Coordinate) error {
	cw := csv.NewWriter(w)
	for _, c := range coords {
		row := []string{
			strconv.FormatFloat(c.X, 'f', coordPrecision, 64),
			strconv.FormatFloat(c.Y, 'f', coordPrecision, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write station row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Load reads a station coordinate CSV: one "x,y" pair per row, meters.
// A leading header row is skipped when its first field is not numeric;
// any other malformed row fails the load, since a station with silently
// missing antennas computes a wrong pattern.
func Load(r io.Reader) ([]Coordinate, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse station csv: %w", err)
	}

	coords := make([]Coordinate, 0, len(records))
	for i, record := range records {
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("station row %d has %d fields, want 2", i+1, len(record))
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if errX != nil || errY != nil {
			if i == 0 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("station row %d is not numeric: %q", i+1, record)
		}
		coords = append(coords, Coordinate{X: roundCoord(x), Y: roundCoord(y)})
	}

	if len(coords) == 0 {
		return nil, fmt.Errorf("station csv has no coordinate rows")
	}
	return coords, nil
}

// LoadFile reads a station coordinate CSV from disk.
func LoadFile(path string) ([]Coordinate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station csv: %w", err)
	}
	defer f.Close()
	coords, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return coords, nil
}
