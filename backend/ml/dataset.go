package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrMissingColumn  = errors.New("missing column")
	ErrMalformedValue = errors.New("malformed value")
	ErrEmptyDataset   = errors.New("dataset has no rows")
)

// Dataset is a labeled set of historical sessions. Labels are 1 for attack.
type Dataset struct {
	SessionIDs []string
	Sessions   []Session
	Labels     []int
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Sessions)
}

// LoadCSVFile opens path and parses it with LoadCSV.
func LoadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return LoadCSV(f)
}

// LoadCSV parses a header-first CSV. Columns may appear in any order; every
// feature column plus session_id and attack_detected is required. The first
// bad cell aborts the whole load.
func LoadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	required := append(append([]string(nil), FeatureNames...), ColSessionID, ColLabel)
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		p := rowParser{record: record, index: index, line: line}
		s := Session{
			NetworkPacketSize: p.integer(ColPacketSize),
			ProtocolType:      p.category(ColProtocol),
			LoginAttempts:     p.integer(ColLoginAttempts),
			SessionDuration:   p.number(ColDuration),
			EncryptionUsed:    p.category(ColEncryption),
			IPReputationScore: p.number(ColIPReputation),
			FailedLogins:      p.integer(ColFailedLogins),
			BrowserType:       p.category(ColBrowser),
			UnusualTimeAccess: p.flag(ColUnusualTime),
		}
		label := p.flag(ColLabel)
		sid := p.cell(ColSessionID)

		if p.err != nil {
			return nil, p.err
		}

		ds.SessionIDs = append(ds.SessionIDs, sid)
		ds.Sessions = append(ds.Sessions, s)
		if label {
			ds.Labels = append(ds.Labels, 1)
		} else {
			ds.Labels = append(ds.Labels, 0)
		}
	}

	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	return ds, nil
}

// rowParser keeps the first error so a row can be decoded field by field.
type rowParser struct {
	record []string
	index  map[string]int
	line   int
	err    error
}

func (p *rowParser) fail(col, value, kind string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: line %d column %s: %q is not a valid %s", ErrMalformedValue, p.line, col, value, kind)
	}
}

func (p *rowParser) cell(col string) string {
	i := p.index[col]
	if i >= len(p.record) {
		p.fail(col, "", "cell")
		return ""
	}

	return strings.TrimSpace(p.record[i])
}

func (p *rowParser) integer(col string) int {
	raw := p.cell(col)
	v, err := strconv.Atoi(raw)
	if err != nil {
		// Exported frames sometimes write integers as 500.0.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			p.fail(col, raw, "integer")
			return 0
		}
		v = int(f)
	}

	return v
}

func (p *rowParser) number(col string) float64 {
	raw := p.cell(col)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(col, raw, "number")
		return 0
	}

	return v
}

func (p *rowParser) flag(col string) bool {
	raw := p.cell(col)
	switch strings.ToLower(raw) {
	case "1", "1.0", "true":
		return true
	case "0", "0.0", "false":
		return false
	}
	p.fail(col, raw, "boolean")

	return false
}

func (p *rowParser) category(col string) string {
	raw := p.cell(col)
	if raw == "" {
		p.fail(col, raw, "category")
	}

	return raw
}

// WriteCSV writes ds in the training CSV layout.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)

	header := append([]string{ColSessionID}, FeatureNames...)
	header = append(header, ColLabel)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, s := range ds.Sessions {
		record := []string{
			ds.SessionIDs[i],
			strconv.Itoa(s.NetworkPacketSize),
			s.ProtocolType,
			strconv.Itoa(s.LoginAttempts),
			strconv.FormatFloat(s.SessionDuration, 'f', -1, 64),
			s.EncryptionUsed,
			strconv.FormatFloat(s.IPReputationScore, 'f', -1, 64),
			strconv.Itoa(s.FailedLogins),
			s.BrowserType,
			boolCell(s.UnusualTimeAccess),
			strconv.Itoa(ds.Labels[i]),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func boolCell(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
