package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

var dobLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "January 2, 2006", "Jan 2, 2006", "02-01-2006"}

// SanitizeCategoryJSON
// - Renames known synonyms (full_name -> name, tax_id -> ein)
// - Drops null/empty values
// - Coerces numeric amounts to two-decimal strings and single values to arrays
// - Removes keys the category schema does not know (additionalProperties = false friendliness)
func SanitizeCategoryJSON(raw []byte, category constants.FieldCategory, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to the schema
	renamed("full_name", "name")
	renamed("applicant_name", "name")
	renamed("ssn", "identification_number")
	renamed("id_number", "identification_number")
	renamed("dob", "date_of_birth")
	renamed("company_name", "business_name")
	renamed("tax_id", "ein")
	renamed("account_number", "account_numbers")
	renamed("amount", "amounts")

	// 2) trim strings, drop null / ""
	for _, k := range []string{"name", "address", "identification_number", "business_name", "business_address"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, isStr := v.(string)
		s = strings.TrimSpace(s)
		if !isStr || s == "" {
			delete(m, k)
			dropped = append(dropped, k+"(empty)")
			continue
		}
		m[k] = s
	}

	// 3) ein: keep the digits, reformat canonical NN-NNNNNNN
	if v, ok := m["ein"]; ok {
		s, _ := v.(string)
		digits := DigitsOnly(s)
		if len(digits) == 9 {
			m["ein"] = digits[:2] + "-" + digits[2:]
		} else {
			delete(m, "ein")
			dropped = append(dropped, "ein(format)")
		}
	}

	// 4) date_of_birth: normalize to ISO-8601
	if v, ok := m["date_of_birth"]; ok {
		s, _ := v.(string)
		if iso, ok := normalizeDate(s); ok {
			m["date_of_birth"] = iso
		} else {
			delete(m, "date_of_birth")
			dropped = append(dropped, "date_of_birth(format)")
		}
	}

	// 5) arrays: accept a single value, drop non-string members
	if v, ok := m["account_numbers"]; ok {
		accts := toStringList(v, func(s string) (string, bool) {
			s = strings.TrimSpace(s)
			return s, len(DigitsOnly(s)) >= 4
		})
		if len(accts) == 0 {
			delete(m, "account_numbers")
			dropped = append(dropped, "account_numbers(empty)")
		} else {
			m["account_numbers"] = accts
		}
	}
	if v, ok := m["amounts"]; ok {
		amounts := toStringList(v, normalizeMoney)
		if len(amounts) == 0 {
			delete(m, "amounts")
			dropped = append(dropped, "amounts(empty)")
		} else {
			m["amounts"] = amounts
		}
	}

	// 6) confidence must stay inside 0..1
	if v, ok := m["confidence"]; ok {
		f, isNum := v.(float64)
		if !isNum || f < 0 || f > 1 {
			delete(m, "confidence")
			dropped = append(dropped, "confidence(range)")
		}
	}

	// 7) remove unknown keys for this category
	allowed := allowedKeys(category)
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "category", category, "dropped", dropped)
	}
	return out, dropped, nil
}

func toStringList(v any, norm func(string) (string, bool)) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case nil:
		return nil
	default:
		items = []any{t}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch t := it.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			continue
		}
		if n, ok := norm(s); ok {
			out = append(out, n)
		}
	}
	return out
}

// normalizeMoney accepts "$1,234.5" style input and returns "1234.50".
func normalizeMoney(s string) (string, bool) {
	d, ok := ParseAmount(s)
	if !ok {
		return "", false
	}
	return d.StringFixed(2), true
}

func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
