package digest

import "entity/internal/domain"

// HashEvent computes the digest of an event's hash-eligible fields (spec
// §3: "{seq, type, timestamp, data, prevHash, category?}"), independent
// of the Hash field itself.
func HashEvent(in domain.HashInput) domain.Digest {
	m := map[string]any{
		"seq":       uint64(in.Seq),
		"type":      string(in.Type),
		"timestamp": in.Timestamp.UTC().Format(rfc3339Milli),
		"data":      recordToAny(in.Data),
		"category":  string(in.Category),
	}
	if in.PrevHash != nil {
		m["prev_hash"] = in.PrevHash.String()
	} else {
		m["prev_hash"] = nil
	}
	return DigestObject(m)
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func recordToAny(r domain.Record) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
