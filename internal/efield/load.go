package efield

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bingo-data/beamscope/internal/monitoring"
)

var logf = monitoring.Component("efield")

// ErrMissingColumn reports a solver export without one of the required
// pattern columns.
var ErrMissingColumn = errors.New("missing column")

// Required column names after header normalisation (trimmed, lowercased,
// quotes stripped). This is the layout of solver rE-table exports.
const (
	colTheta    = "theta [deg]"
	colPhi      = "phi [deg]"
	colEThetaRe = "re(retheta) [v]"
	colEThetaIm = "im(retheta) [v]"
	colEPhiRe   = "re(rephi) [v]"
	colEPhiIm   = "im(rephi) [v]"
)

var requiredColumns = []string{colTheta, colPhi, colEThetaRe, colEThetaIm, colEPhiRe, colEPhiIm}

// freqMatchTolerance bounds the frequency filter comparison; export tables
// store the sweep frequency as short decimal text.
const freqMatchTolerance = 1e-6

// LoadOptions tune the CSV load. The zero value keeps every well-formed row.
type LoadOptions struct {
	// FreqGHz keeps only rows at this frequency when the export carries a
	// frequency column. Zero disables the filter.
	FreqGHz float64
	// ThetaStride keeps every Nth surviving row, thinning oversampled
	// exports. Values below 2 keep everything.
	ThetaStride int
}

// LoadFile reads an element-pattern CSV export from disk.
func LoadFile(path string, opts LoadOptions) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open element pattern: %w", err)
	}
	defer f.Close()
	set, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return set, nil
}

// Load reads an element-pattern CSV export. Exports are comma or tab
// separated with quoted fields and may use decimal commas; rows whose
// required fields fail to parse are dropped and counted rather than
// failing the load.
func Load(r io.Reader, opts LoadOptions) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read element pattern: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectComma(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse element pattern csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("element pattern csv has no header row")
	}

	cols, freqIdx, err := resolveColumns(records[0])
	if err != nil {
		return nil, err
	}
	if opts.FreqGHz != 0 && freqIdx < 0 {
		logf("frequency filter requested (%g GHz) but export has no frequency column; keeping all rows", opts.FreqGHz)
	}

	set := &Set{Samples: make([]Sample, 0, len(records)-1)}
	seen := 0
	for _, record := range records[1:] {
		smp, ok := parseRecord(record, cols)
		if !ok {
			set.Dropped++
			continue
		}
		if opts.FreqGHz != 0 && freqIdx >= 0 {
			f, err := parseField(record, freqIdx)
			if err != nil {
				set.Dropped++
				continue
			}
			if math.Abs(f-opts.FreqGHz) > freqMatchTolerance {
				continue
			}
		}
		if opts.ThetaStride > 1 {
			keep := seen%opts.ThetaStride == 0
			seen++
			if !keep {
				continue
			}
		}
		set.Samples = append(set.Samples, smp)
	}

	if set.Dropped > 0 {
		logf("dropped %d malformed rows (%d kept)", set.Dropped, len(set.Samples))
	}
	return set, nil
}

// detectComma picks the field separator by inspecting the header line.
func detectComma(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}

// resolveColumns maps the six required columns (and the optional frequency
// column) to their indexes in the header row.
func resolveColumns(header []string) (map[string]int, int, error) {
	byName := make(map[string]int, len(header))
	freqIdx := -1
	for i, raw := range header {
		name := normaliseHeader(raw)
		if _, dup := byName[name]; !dup {
			byName[name] = i
		}
		if freqIdx < 0 && strings.Contains(name, "freq") {
			freqIdx = i
		}
	}

	cols := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, want := range requiredColumns {
		idx, ok := byName[want]
		if !ok {
			missing = append(missing, want)
			continue
		}
		cols[want] = idx
	}
	if len(missing) > 0 {
		return nil, -1, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, freqIdx, nil
}

func normaliseHeader(raw string) string {
	name := strings.TrimPrefix(raw, "\ufeff")
	name = strings.ReplaceAll(name, `"`, "")
	return strings.ToLower(strings.TrimSpace(name))
}

// parseField parses one numeric field, tolerating decimal commas.
func parseField(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, fmt.Errorf("record has %d fields, need index %d", len(record), idx)
	}
	text := strings.TrimSpace(strings.ReplaceAll(record[idx], ",", "."))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("field %d is NaN", idx)
	}
	return v, nil
}

func parseRecord(record []string, cols map[string]int) (Sample, bool) {
	var smp Sample
	fields := []struct {
		name string
		dst  *float64
	}{
		{colTheta, &smp.ThetaDeg},
		{colPhi, &smp.PhiDeg},
		{colEThetaRe, &smp.EThetaRe},
		{colEThetaIm, &smp.EThetaIm},
		{colEPhiRe, &smp.EPhiRe},
		{colEPhiIm, &smp.EPhiIm},
	}
	for _, f := range fields {
		v, err := parseField(record, cols[f.name])
		if err != nil {
			return Sample{}, false
		}
		*f.dst = v
	}
	return smp, true
}

// WriteCSV writes samples in the canonical export layout, angles at two
// decimals and field components in scientific notation.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(requiredColumns); err != nil {
		return fmt.Errorf("write element pattern header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatFloat(s.ThetaDeg, 'f', 2, 64),
			strconv.FormatFloat(s.PhiDeg, 'f', 2, 64),
			strconv.FormatFloat(s.EThetaRe, 'e', 15, 64),
			strconv.FormatFloat(s.EThetaIm, 'e', 15, 64),
			strconv.FormatFloat(s.EPhiRe, 'e', 15, 64),
			strconv.FormatFloat(s.EPhiIm, 'e', 15, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write element pattern row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
