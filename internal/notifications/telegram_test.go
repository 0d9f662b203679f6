package notifications

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) (*TelegramNotifier, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	n := NewTelegramNotifier("test-token", "chat-42")
	n.apiBase = srv.URL
	n.client = srv.Client()
	return n, srv
}

func TestSendAlertFormatsMessage(t *testing.T) {
	var gotPath, gotChatID, gotText string

	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChatID = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.WriteHeader(http.StatusOK)
	})

	err := n.SendAlert("Order Rejected", "leverage limit hit", LevelCritical, map[string]interface{}{
		"symbol": "BTCUSDT",
		"stage":  "risk",
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "chat-42", gotChatID)
	assert.Contains(t, gotText, "🔴 *Order Rejected*")
	assert.Contains(t, gotText, "leverage limit hit")
	// data keys are appended sorted
	assert.Contains(t, gotText, "`stage`: risk")
	assert.Contains(t, gotText, "`symbol`: BTCUSDT")
	assert.Less(t, strings.Index(gotText, "`stage`"), strings.Index(gotText, "`symbol`"))
}

func TestSendAlertLevelEmoji(t *testing.T) {
	tests := []struct {
		level string
		emoji string
	}{
		{LevelInfo, "ℹ️"},
		{LevelWarning, "⚠️"},
		{LevelError, "🚨"},
		{LevelCritical, "🔴"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var gotText string
			n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				gotText = r.FormValue("text")
			})

			require.NoError(t, n.SendAlert("Title", "body", tt.level, nil))
			assert.Contains(t, gotText, tt.emoji)
		})
	}
}

func TestSendAlertHTTPFailure(t *testing.T) {
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := n.SendAlert("Title", "body", LevelInfo, nil)
	assert.Error(t, err)
}
