package tunables

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ParamRecord is one (name, value) row of a serialized configuration. Values
// are rendered as text so they round-trip through storage and Coerce.
type ParamRecord struct {
	Name  string
	Value string
}

// ParamRecords returns the current configuration as rows sorted by name.
func (tg *Groups) ParamRecords() []ParamRecord {
	entries := tg.Tunables()
	records := make([]ParamRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, ParamRecord{Name: e.Tunable.name, Value: FormatValue(e.Tunable.value)})
	}
	return records
}

// ConfigHash returns the SHA-256 content hash of the current configuration.
// Two registries with the same tunable values hash identically regardless of
// group layout or dirty flags.
func (tg *Groups) ConfigHash() string {
	return HashRecords(tg.ParamRecords())
}

// HashRecords hashes rows that are already sorted by name. Every field is
// length-prefixed so values containing separators cannot collide.
func HashRecords(records []ParamRecord) string {
	h := sha256.New()
	for _, r := range records {
		fmt.Fprintf(h, "%d:%s%d:%s", len(r.Name), r.Name, len(r.Value), r.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FormatValue renders a canonical tunable value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
