package i18n

import "strings"

// Selections maps model → field → stored value → display label.
type Selections map[string]map[string]map[string]string

// Has reports whether a field of model has a configured selection.
func (s Selections) Has(model, field string) bool {
	_, ok := s[strings.ToLower(model)][strings.ToLower(field)]
	return ok
}

// Label returns the display label of value. Comma-separated multi-select
// values are labelled one by one and joined with ", ". Unknown values keep
// their raw form.
func (s Selections) Label(model, field, value string) string {
	options := s[strings.ToLower(model)][strings.ToLower(field)]
	if options == nil || value == "" {
		return value
	}

	parts := strings.Split(value, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if label, ok := options[strings.ToLower(p)]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, p)
		}
	}
	return strings.Join(labels, ", ")
}
