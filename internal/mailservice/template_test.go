package mailservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/threadmail/internal/i18n"
	"github.com/nhle/threadmail/internal/model"
)

func TestHTMLBody(t *testing.T) {
	tr, err := i18n.New("fr", map[string]string{
		"True":   "Oui",
		"False":  "Non",
		"Status": "Statut",
	})
	require.NoError(t, err)
	sel := i18n.Selections{
		"order": {"status": {"new": "New", "done": "Done"}, "tags": {"a": "Alpha", "b": "Beta"}},
	}

	f := newFixture(t, fakeAccounts{}, WithTranslator(tr), WithSelections(sel))

	t.Run("free text", func(t *testing.T) {
		got, err := f.svc.htmlBody(&model.Message{Type: model.MessageTypePlain, Body: "<p>hi</p>"})
		require.NoError(t, err)
		assert.Equal(t, "<p>hi</p>", got)
	})

	t.Run("audit payload", func(t *testing.T) {
		msg := &model.Message{
			Type:         model.MessageTypeNotification,
			RelatedModel: "order",
			Body: `{"tracks":[
				{"name":"status","title":"Status","value":"done","oldValue":"new"},
				{"name":"tags","title":"Tags","value":"a,b","oldValue":""},
				{"name":"urgent","title":"Urgent","value":"true","oldValue":"false"},
				{"name":"note","title":"Note","value":"<b>x</b>","oldValue":""}
			]}`,
		}
		got, err := f.svc.htmlBody(msg)
		require.NoError(t, err)

		assert.Contains(t, got, "<ul>")
		assert.Contains(t, got, "<strong>Statut</strong>: New &rarr; Done")
		assert.Contains(t, got, "<strong>Tags</strong>: Alpha, Beta")
		assert.Contains(t, got, "<strong>Urgent</strong>: Non &rarr; Oui")
		assert.Contains(t, got, "&lt;b&gt;x&lt;/b&gt;")
	})

	t.Run("no related model keeps raw values", func(t *testing.T) {
		msg := &model.Message{
			Type: model.MessageTypeNotification,
			Body: `{"tracks":[{"name":"urgent","title":"Urgent","value":"true"}]}`,
		}
		got, err := f.svc.htmlBody(msg)
		require.NoError(t, err)
		assert.Contains(t, got, "<strong>Urgent</strong>: true")
	})

	t.Run("non-string values", func(t *testing.T) {
		msg := &model.Message{
			Type:         model.MessageTypeNotification,
			RelatedModel: "order",
			Body: `{"tracks":[
				{"name":"qty","title":"Qty","value":5,"oldValue":3},
				{"name":"paid","title":"Paid","value":true,"oldValue":null}
			]}`,
		}
		got, err := f.svc.htmlBody(msg)
		require.NoError(t, err)
		assert.Contains(t, got, "<strong>Qty</strong>: 3 &rarr; 5")
		assert.Contains(t, got, "<strong>Paid</strong>: Oui")
	})

	t.Run("invalid payload", func(t *testing.T) {
		msg := &model.Message{Type: model.MessageTypeNotification, Body: "{not json <x>"}
		_, err := f.svc.htmlBody(msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding audit payload")
	})
}
