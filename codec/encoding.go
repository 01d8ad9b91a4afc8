// backend/codec/encoding.go
package codec

import (
	"bytes"
	"fmt"
	"log"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeJapanese converts a raw Restaurant Board export to UTF-8.
// The portal serves Shift_JIS (CP932) CSVs, but operator re-saves sometimes
// arrive already in UTF-8, so bytes that are valid UTF-8 pass through
// untouched (after BOM stripping). If the Shift_JIS transform itself fails
// the raw bytes are returned as-is rather than aborting the extract.
func DecodeJapanese(b []byte) []byte {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return b
	}
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), b)
	if err != nil {
		log.Printf("WARN Codec: Shift_JIS decode failed (%v), keeping raw bytes", err)
		return b
	}
	return decoded
}

// FieldMap is one parsed row of a raw export, keyed by the portal's own
// column headers.
type FieldMap map[string]string

func (m FieldMap) Get(key string) string {
	return m[key]
}

// ParseRawTable reads a header-led delimited table (already UTF-8) into
// field maps. Rows shorter than the header are padded with empty fields and
// longer rows are truncated; the portal's exports are not reliably square.
func ParseRawTable(b []byte) ([]FieldMap, error) {
	reader := newLenientCSVReader(bytes.NewReader(b))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("raw table has no header row")
	}

	header := rows[0]
	records := make([]FieldMap, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(FieldMap, len(header))
		for i, name := range header {
			if i < len(row) {
				m[name] = row[i]
			} else {
				m[name] = ""
			}
		}
		records = append(records, m)
	}
	return records, nil
}
