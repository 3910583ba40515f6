package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"channel-clock/internal/models"
)

// fakeBotAPI serves getChat and setChatTitle for a few canned chats.
type fakeBotAPI struct {
	mu     sync.Mutex
	titles map[string]string
	errors map[string]string // chat id -> error description
	hang   chan struct{}     // when set, setChatTitle blocks until it is closed
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params map[string]string
	_ = json.NewDecoder(r.Body).Decode(&params)
	chatID := params["chat_id"]

	if f.hang != nil && strings.HasSuffix(r.URL.Path, "/setChatTitle") {
		<-f.hang
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if desc, ok := f.errors[chatID]; ok {
		code := 400
		if strings.HasPrefix(desc, "Forbidden") {
			code = 403
		} else if strings.HasPrefix(desc, "Internal") {
			code = 500
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": code, "description": desc})
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/getChat"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"id": json.Number(chatID), "type": "supergroup", "title": f.titles[chatID]},
		})
	case strings.HasSuffix(r.URL.Path, "/setChatTitle"):
		if f.titles[chatID] == params["title"] {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat title is not modified"})
			return
		}
		f.titles[chatID] = params["title"]
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBotAPI) title(chatID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[chatID]
}

func newTestTelegram(t *testing.T, api *fakeBotAPI) *Telegram {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "test-token", Offline: true})
	require.NoError(t, err)
	return NewTelegram(b)
}

func TestTelegram_LabelAndRename(t *testing.T) {
	api := &fakeBotAPI{titles: map[string]string{"-1001": "🇰🇷∥09：50 🏠"}}
	tg := newTestTelegram(t, api)
	ctx := context.Background()

	title, err := tg.Label(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, "🇰🇷∥09：50 🏠", title)

	require.NoError(t, tg.Rename(ctx, "-1001", label))
	assert.Equal(t, label, api.title("-1001"))

	// Same title again is not an error.
	assert.NoError(t, tg.Rename(ctx, "-1001", label))
}

func TestTelegram_Errors(t *testing.T) {
	api := &fakeBotAPI{
		titles: map[string]string{},
		errors: map[string]string{
			"-1002": "Bad Request: chat not found",
			"-1003": "Forbidden: bot was kicked from the channel chat",
			"-1004": "Bad Request: not enough rights to change chat title",
			"-1005": "Internal Server Error",
		},
	}
	tg := newTestTelegram(t, api)
	ctx := context.Background()

	err := tg.Rename(ctx, "-1002", label)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tg.Label(ctx, "-1003")
	assert.ErrorIs(t, err, ErrForbidden)

	err = tg.Rename(ctx, "-1004", label)
	assert.ErrorIs(t, err, ErrForbidden)

	err = tg.Rename(ctx, "-1005", label)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = tg.Label(ctx, "general")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTelegram_HungRenameTimesOut(t *testing.T) {
	api := &fakeBotAPI{
		titles: map[string]string{"-1001": "🇰🇷∥09：50 🏠"},
		hang:   make(chan struct{}),
	}
	tg := newTestTelegram(t, api)
	// Runs before the server cleanup, which waits for in-flight requests.
	t.Cleanup(func() { close(api.hang) })

	region := &models.Region{ID: "SEOUL", EntityID: "-1001"}
	published := map[string]string{}

	start := time.Now()
	res := NewPublisher(tg, 1).Publish(context.Background(), published, region, label)
	elapsed := time.Since(start)

	assert.Equal(t, Transient, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 3*time.Second)
	assert.NotContains(t, published, "SEOUL")
}
