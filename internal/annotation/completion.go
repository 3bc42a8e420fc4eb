package annotation

// LatestByAnnotator scans one side's log lines top to bottom and keeps, per
// pair, the last record belonging to the given annotator. Records with no
// annotator at all are attributed to the reader; early log files predate the
// annotator column.
func LatestByAnnotator(lines []string, annotator string) map[string]Record {
	target := Canonical(annotator)
	out := make(map[string]Record)
	for _, line := range lines {
		rec, ok := ParseLine(line)
		if !ok {
			continue
		}
		owner := rec.CanonicalAnnotator()
		if owner == "" {
			owner = target
			rec.Annotator = annotator
		}
		if owner == target {
			out[rec.PairKey] = rec
		}
	}
	return out
}

// Completion is the derived, never-persisted per-annotator view of both
// sides' latest decisions.
type Completion struct {
	Hypo map[string]Record
	Adv  map[string]Record
}

// BuildCompletion derives the completion index from the two per-side latest
// maps.
func BuildCompletion(hypo, adv map[string]Record) Completion {
	return Completion{Hypo: hypo, Adv: adv}
}

// Complete reports whether both sides of a pair carry a non-empty status for
// this annotator.
func (c Completion) Complete(pairKey string) bool {
	h, okH := c.Hypo[pairKey]
	a, okA := c.Adv[pairKey]
	return okH && okA && h.Status != "" && a.Status != ""
}

// CompletedSet materializes the set of complete pair keys.
func (c Completion) CompletedSet() map[string]struct{} {
	out := make(map[string]struct{})
	for pk := range c.Hypo {
		if c.Complete(pk) {
			out[pk] = struct{}{}
		}
	}
	for pk := range c.Adv {
		if c.Complete(pk) {
			out[pk] = struct{}{}
		}
	}
	return out
}
