package ledger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"airline_scheduler/internal/models"
)

// CompactExt selects the msgpack+zstd snapshot encoding; any other path is
// written as indented JSON.
const CompactExt = ".msgpack.zst"

func encodeSnapshot(w io.Writer, path string, st *Snapshot) error {
	if !strings.HasSuffix(path, CompactExt) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	enc := msgpack.NewEncoder(zw)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(st); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return zw.Close()
}

func decodeSnapshot(r io.Reader, path string) (*Snapshot, error) {
	var st Snapshot
	if !strings.HasSuffix(path, CompactExt) {
		if err := json.NewDecoder(r).Decode(&st); err != nil {
			return nil, err
		}
		return &st, nil
	}
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()
	dec := msgpack.NewDecoder(zr)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &st, nil
}

// Save persists the current state to disk.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var buf bytes.Buffer
	if err := encodeSnapshot(&buf, path, m.st); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the state with the snapshot stored at path.
func (m *MemoryStore) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := decodeSnapshot(f, path)
	if err != nil {
		return err
	}
	st.normalize()
	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	return nil
}

// LoadAirportsCSV reads airports from a CSV file with a header row. Columns
// are found by name; OurAirports-style names are accepted as well.
func LoadAirportsCSV(path string) ([]models.Airport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAirportsCSV(f)
}

func ReadAirportsCSV(r io.Reader) ([]models.Airport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	idx := func(names ...string) int {
		for _, name := range names {
			for i, h := range headers {
				if strings.EqualFold(strings.TrimSpace(h), name) {
					return i
				}
			}
		}
		return -1
	}

	codeIdx := idx("airport_code", "code", "iata_code")
	nameIdx := idx("airport_name", "name")
	cityIdx := idx("city", "municipality")
	countryIdx := idx("country", "iso_country")
	if codeIdx < 0 {
		return nil, fmt.Errorf("airports csv: no airport code column")
	}
	field := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var airports []models.Airport
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		code := strings.ToUpper(field(rec, codeIdx))
		if code == "" {
			continue
		}
		airports = append(airports, models.Airport{
			Code:    code,
			Name:    field(rec, nameIdx),
			City:    field(rec, cityIdx),
			Country: field(rec, countryIdx),
		})
	}
	return airports, nil
}
