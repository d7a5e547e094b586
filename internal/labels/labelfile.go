package labels

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/trashdetect/perception/internal/perr"
)

// FormatLine renders one detection in the unified label line format:
// "<category_id> <x_center> <y_center> <width> <height>".
func FormatLine(d Detection) string {
	return strconv.Itoa(d.CategoryID) + " " +
		formatFloat(d.Box.XCenter) + " " +
		formatFloat(d.Box.YCenter) + " " +
		formatFloat(d.Box.Width) + " " +
		formatFloat(d.Box.Height)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseLine parses a single label line. Blank lines are not accepted here;
// ParseRecord skips them.
func ParseLine(line string) (Detection, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Detection{}, fmt.Errorf("expected 5 fields, got %d in %q", len(fields), line)
	}
	cat, err := strconv.Atoi(fields[0])
	if err != nil {
		return Detection{}, fmt.Errorf("invalid category id %q: %w", fields[0], err)
	}
	if cat < 0 {
		return Detection{}, fmt.Errorf("negative category id %d", cat)
	}
	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Detection{}, fmt.Errorf("invalid coordinate %q: %w", fields[i+1], err)
		}
		vals[i] = v
	}
	d := Detection{
		CategoryID: cat,
		Box:        NormalizedBox{XCenter: vals[0], YCenter: vals[1], Width: vals[2], Height: vals[3]},
	}
	if !d.Box.Valid() {
		return Detection{}, fmt.Errorf("coordinates outside [0,1] in %q", line)
	}
	return d, nil
}

// ParseRecord reads a whole label file. path is only used to name the file in
// the returned ErrData.
func ParseRecord(r io.Reader, path string) (LabelRecord, error) {
	var rec LabelRecord
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		d, err := ParseLine(line)
		if err != nil {
			return nil, perr.Dataf(path, "line %d: %v", lineNo, err)
		}
		rec = append(rec, d)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.DataErr(path, err)
	}
	return rec, nil
}

// Bytes encodes a record as label file contents. An empty record encodes to
// an empty file.
func (rec LabelRecord) Bytes() []byte {
	var buf bytes.Buffer
	for _, d := range rec {
		buf.WriteString(FormatLine(d))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Remap returns a copy of rec with every category id translated through m.
// An id missing from m is a configuration error.
func (rec LabelRecord) Remap(m CategoryMap) (LabelRecord, error) {
	out := make(LabelRecord, len(rec))
	for i, d := range rec {
		g, err := m.Global(d.CategoryID)
		if err != nil {
			return nil, err
		}
		out[i] = Detection{CategoryID: g, Box: d.Box}
	}
	return out, nil
}
