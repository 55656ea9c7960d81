package llmclient

// EnforceNoAdditionalProperties recursively rewrites every object-typed node
// in a JSON schema to set "additionalProperties": false, per spec.md §4.1 —
// required before sending a schema to a provider's strict JSON-schema mode.
// The input is not mutated; a deep copy is returned.
func EnforceNoAdditionalProperties(schema map[string]any) map[string]any {
	return enforceNode(schema).(map[string]any)
}

func enforceNode(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = enforceNode(val)
		}
		if t, ok := out["type"]; ok && t == "object" {
			out["additionalProperties"] = false
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = enforceNode(val)
		}
		return out
	default:
		return v
	}
}
