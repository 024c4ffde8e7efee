package qdrant

import "github.com/theapemachine/memoria/pkg/memory"

// encodeFilter renders a filter in Qdrant's JSON filter language.
func encodeFilter(filter *memory.Filter) map[string]any {
	if filter == nil || filter.Empty() {
		return nil
	}

	out := map[string]any{}

	if len(filter.Must) > 0 {
		out["must"] = encodeConditions(filter.Must)
	}

	if len(filter.MustNot) > 0 {
		out["must_not"] = encodeConditions(filter.MustNot)
	}

	if len(filter.Should) > 0 {
		out["should"] = encodeConditions(filter.Should)
	}

	return out
}

func encodeConditions(conditions []memory.Condition) []map[string]any {
	out := make([]map[string]any, 0, len(conditions))

	for _, c := range conditions {
		switch {
		case c.IsEmpty:
			out = append(out, map[string]any{"is_empty": map[string]any{"key": c.Key}})
		case c.Range != nil:
			r := map[string]any{}

			if c.Range.GTE != nil {
				r["gte"] = *c.Range.GTE
			}

			if c.Range.LTE != nil {
				r["lte"] = *c.Range.LTE
			}

			out = append(out, map[string]any{"key": c.Key, "range": r})
		case c.Any != nil:
			out = append(out, map[string]any{"key": c.Key, "match": map[string]any{"any": c.Any}})
		default:
			out = append(out, map[string]any{"key": c.Key, "match": map[string]any{"value": c.Match}})
		}
	}

	return out
}
