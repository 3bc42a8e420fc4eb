// Package annotation defines the decision-record model and the derivations
// built from it: canonical annotator identity and the per-annotator
// completion index. Records are immutable once appended; corrections are new
// records and the last record wins.
package annotation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Side string

const (
	SideHypothesis  Side = "hypothesis"
	SideAdversarial Side = "adversarial"
)

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ValidStatus reports whether s is a decided status.
func ValidStatus(s Status) bool {
	return s == StatusAccepted || s == StatusRejected
}

// Canonical normalizes an annotator display name for log matching: trimmed
// and case-folded. This absorbs casing and whitespace drift between sessions
// without a schema migration.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Record is one decision event for one side of one pair. Meta carries the
// metadata-feed fields copied into the log line verbatim.
type Record struct {
	PairKey   string
	Annotator string
	Side      Side
	Status    Status
	DecidedAt int64
	CopiedID  string
	Meta      map[string]any
}

// CanonicalAnnotator returns the normalized identity recorded for matching.
func (r Record) CanonicalAnnotator() string {
	return Canonical(r.Annotator)
}

// MarshalLine renders the record as one JSON log line (no trailing newline).
func (r Record) MarshalLine() (string, error) {
	obj := make(map[string]any, len(r.Meta)+7)
	for k, v := range r.Meta {
		obj[k] = v
	}
	obj["pair_key"] = r.PairKey
	obj["annotator"] = r.Annotator
	obj["canonical_annotator"] = r.CanonicalAnnotator()
	obj["side"] = string(r.Side)
	obj["status"] = string(r.Status)
	obj["decided_at"] = r.DecidedAt
	if r.CopiedID != "" {
		obj["copied_id"] = r.CopiedID
	} else {
		delete(obj, "copied_id")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshal decision record: %w", err)
	}
	return string(data), nil
}

// ParseLine decodes one log line. The second return is false for blank or
// malformed lines, which callers skip.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return Record{}, false
	}
	rec := Record{Meta: obj}
	rec.PairKey = stringField(obj, "pair_key")
	if rec.PairKey == "" {
		rec.PairKey = stringField(obj, "hypo_id") + "|" + stringField(obj, "adversarial_id")
	}
	rec.Annotator = stringField(obj, "annotator")
	if canon := stringField(obj, "canonical_annotator"); rec.Annotator == "" && canon != "" {
		rec.Annotator = canon
	}
	rec.Side = Side(stringField(obj, "side"))
	rec.Status = Status(strings.TrimSpace(stringField(obj, "status")))
	rec.CopiedID = stringField(obj, "copied_id")
	if ts, ok := obj["decided_at"].(float64); ok {
		rec.DecidedAt = int64(ts)
	}
	return rec, true
}

func stringField(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return v
}
