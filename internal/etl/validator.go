package etl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Validator inspects a payload and reports anomalies as warnings. It never
// rejects a payload; records are passed through untyped.
type Validator struct {
	// PageSize is the upstream default page size. A payload of exactly this
	// many records probably means more pages exist that were not fetched.
	PageSize int
}

func NewValidator(pageSize int) *Validator {
	return &Validator{PageSize: pageSize}
}

// Check returns human-readable warnings about payload, or nil.
func (v *Validator) Check(payload Payload) []string {
	var warnings []string
	if v.PageSize > 0 && len(payload) == v.PageSize {
		warnings = append(warnings, fmt.Sprintf(
			"payload has exactly %d records, the API page size; later pages are not fetched", v.PageSize))
	}

	var (
		firstKeys  string
		nonObjects int
		differing  int
		seenFirst  bool
	)
	for _, raw := range payload {
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
			nonObjects++
			continue
		}
		keys := keySignature(rec)
		if !seenFirst {
			firstKeys, seenFirst = keys, true
			continue
		}
		if keys != firstKeys {
			differing++
		}
	}
	if nonObjects > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d elements are not JSON objects", nonObjects, len(payload)))
	}
	if differing > 0 {
		warnings = append(warnings, fmt.Sprintf("%d records have a different key set than the first record", differing))
	}
	return warnings
}

func keySignature(rec map[string]json.RawMessage) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}
