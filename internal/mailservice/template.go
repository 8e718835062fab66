package mailservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/nhle/threadmail/internal/model"
)

// auditPayload is the body of a notification recording field changes.
type auditPayload struct {
	Tracks []auditTrack `json:"tracks"`
}

// auditTrack is one changed field. Values arrive as any JSON scalar.
type auditTrack struct {
	Name     string          `json:"name"`
	Title    string          `json:"title"`
	Value    json.RawMessage `json:"value"`
	OldValue json.RawMessage `json:"oldValue"`
}

// track is an auditTrack with its values formatted for display.
type track struct {
	Name            string
	Title           string
	Value           string
	OldValue        string
	DisplayValue    string
	OldDisplayValue string
}

// auditView is what the diff template renders.
type auditView struct {
	Message *model.Message
	Tracks  []auditRow
}

type auditRow struct {
	Title string
	Old   string
	New   string
}

var defaultTemplate = template.Must(template.New("audit").Parse(
	`<ul>{{range .Tracks}}
<li><strong>{{.Title}}</strong>: {{if .Old}}{{.Old}} &rarr; {{end}}{{.New}}</li>{{end}}
</ul>`))

// htmlBody returns the HTML sent for msg: its body as is, or the rendered
// change list when the body is an audit payload. A payload that does not
// decode is an error.
func (s *Service) htmlBody(msg *model.Message) (string, error) {
	if !msg.IsAuditPayload() {
		return msg.Body, nil
	}

	tracks, err := decodeAuditPayload(msg.Body)
	if err != nil {
		return "", err
	}

	if msg.RelatedModel != "" {
		s.enrich(msg.RelatedModel, tracks)
	}

	view := auditView{Message: msg, Tracks: make([]auditRow, 0, len(tracks))}
	for _, t := range tracks {
		view.Tracks = append(view.Tracks, auditRow{
			Title: s.translator.T(firstNonEmpty(t.Title, t.Name)),
			Old:   firstNonEmpty(t.OldDisplayValue, t.OldValue),
			New:   firstNonEmpty(t.DisplayValue, t.Value),
		})
	}

	var buf bytes.Buffer
	if err := s.templates.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("rendering audit template: %w", err)
	}
	return buf.String(), nil
}

// enrich fills display values from selection labels and translated
// booleans.
func (s *Service) enrich(relatedModel string, tracks []track) {
	for i := range tracks {
		t := &tracks[i]
		if s.selections.Has(relatedModel, t.Name) {
			t.DisplayValue = s.selections.Label(relatedModel, t.Name, t.Value)
			t.OldDisplayValue = s.selections.Label(relatedModel, t.Name, t.OldValue)
			continue
		}
		if label, ok := s.boolLabel(t.Value); ok {
			t.DisplayValue = label
		}
		if label, ok := s.boolLabel(t.OldValue); ok {
			t.OldDisplayValue = label
		}
	}
}

func (s *Service) boolLabel(v string) (string, bool) {
	switch strings.ToLower(v) {
	case "true":
		return s.translator.T("True"), true
	case "false":
		return s.translator.T("False"), true
	}
	return "", false
}

// decodeAuditPayload parses an audit body and formats its values.
func decodeAuditPayload(body string) ([]track, error) {
	var payload auditPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &payload); err != nil {
		return nil, fmt.Errorf("decoding audit payload: %w", err)
	}

	tracks := make([]track, 0, len(payload.Tracks))
	for i, t := range payload.Tracks {
		value, err := jsonText(t.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding value of track %d: %w", i, err)
		}
		oldValue, err := jsonText(t.OldValue)
		if err != nil {
			return nil, fmt.Errorf("decoding old value of track %d: %w", i, err)
		}
		tracks = append(tracks, track{
			Name:     t.Name,
			Title:    t.Title,
			Value:    value,
			OldValue: oldValue,
		})
	}
	return tracks, nil
}

// jsonText renders a JSON value as display text: strings unquoted, null
// and missing values empty, other values in their compact JSON form.
func jsonText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
