package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/reliefline/pkg/configutil"
	"github.com/kaptinlin/jsonrepair"
)

// ParseFields decodes classifier output. Markdown code fences are stripped,
// malformed JSON is repaired, and loosely typed values (booleans, numbers,
// nested objects) are flattened to strings.
func ParseFields(raw string) (Fields, error) {
	body := stripFences(raw)
	if body == "" {
		return Fields{}, errors.New("ticket: empty classifier output")
	}
	var m map[string]any
	if err := unmarshalJSON([]byte(body), &m); err != nil {
		return Fields{}, fmt.Errorf("ticket: decode classifier output: %w", err)
	}
	normalized := make(map[string]any, len(m))
	for k, v := range m {
		key := strings.ReplaceAll(strings.TrimSpace(k), " ", "_")
		val := flatten(v)
		if list, ok := val.([]string); ok && !isListField(key) {
			val = strings.Join(list, ", ")
		}
		if str, ok := val.(string); ok && isListField(key) {
			val = splitList(str)
		}
		normalized[key] = val
	}
	var f Fields
	if err := configutil.DecodeSettings(normalized, &f); err != nil {
		return Fields{}, fmt.Errorf("ticket: map classifier output: %w", err)
	}
	return f, nil
}

func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

func isListField(key string) bool {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	return k == "servicesneeded"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func flatten(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case float64:
		return fmt.Sprintf("%g", val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := flatten(item).(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return val
	}
}
