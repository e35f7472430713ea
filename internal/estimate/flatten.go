package estimate

import "encoding/json"

// Flatten returns the persisted projection of the tree: inactive sections
// reduced to their in-use flag, bookkeeping stripped and nulls replaced with
// empty values.
func Flatten(t Tree) map[string]any {
	t = Normalize(t)
	b, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	for _, svc := range registry {
		if !svc.section(&t).InUse() {
			out[svc.SectionKey] = map[string]any{svc.InUseField: false}
			continue
		}
		if sec, ok := out[svc.SectionKey].(map[string]any); ok {
			delete(sec, "touchedFields")
			delete(sec, "settling")
		}
	}
	return sanitize(out).(map[string]any)
}

func sanitize(v any) any {
	switch v := v.(type) {
	case nil:
		return ""
	case map[string]any:
		for k, x := range v {
			v[k] = sanitize(x)
		}
		return v
	case []any:
		for i, x := range v {
			v[i] = sanitize(x)
		}
		return v
	}
	return v
}

// Unflatten rebuilds a tree from a persisted projection.
func Unflatten(doc map[string]any) (Tree, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return Tree{}, err
	}
	var t Tree
	if err := json.Unmarshal(b, &t); err != nil {
		return Tree{}, err
	}
	return Normalize(t), nil
}
