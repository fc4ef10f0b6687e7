package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trashcal/internal/migrate"
	"trashcal/internal/model"
)

const v1Reply = "こちらが抽出結果です。\n```json\n" + `{
  "0": {"name": "", "icon": ""},
  "1": {"name": "", "icon": ""},
  "2": {"name": "燃えるゴミ", "icon": "burn"},
  "3": {"name": "", "icon": ""},
  "4": {"name": "プラスチック", "icon": "plastic"},
  "5": {"name": "", "icon": ""},
  "6": {"name": "", "icon": ""}
}` + "\n```"

func TestParseResponseV1(t *testing.T) {
	p, err := ParseResponse(v1Reply)
	require.NoError(t, err)
	assert.True(t, p.FromV1)
	require.Len(t, p.Schedule.Entries, 2)
	assert.Equal(t, "燃えるゴミ", p.Schedule.Entries[0].Trash.Name)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Tuesday}, p.Schedule.Entries[0].Rule)
	assert.Equal(t, model.Weekly{DayOfWeek: time.Thursday}, p.Schedule.Entries[1].Rule)
}

func TestParseResponseV2(t *testing.T) {
	p, err := ParseResponse(`{"version":2,"entries":[{"id":"x","trash":{"name":"缶","icon":"can"},"rule":{"type":"weekly","dayOfWeek":3}}]}`)
	require.NoError(t, err)
	assert.False(t, p.FromV1)
	require.Len(t, p.Schedule.Entries, 1)
	assert.Equal(t, "x", p.Schedule.Entries[0].ID)
}

func TestParseResponseErrors(t *testing.T) {
	_, err := ParseResponse("申し訳ありませんが、読み取れませんでした。")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseResponse("{not json}")
	assert.ErrorIs(t, err, migrate.ErrUnrecognizedSchedule)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("  ", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := New("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.model)
}

func fakeAPI(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type   string `json:"type"`
					Source struct {
						MediaType string `json:"media_type"`
					} `json:"source"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.Unmarshal(body, &req))
		if assert.Len(t, req.Messages, 1) && assert.Len(t, req.Messages[0].Content, 2) {
			assert.Equal(t, "document", req.Messages[0].Content[0].Type)
			assert.Equal(t, "application/pdf", req.Messages[0].Content[0].Source.MediaType)
			assert.Equal(t, "text", req.Messages[0].Content[1].Type)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		resp := map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         req.Model,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 20},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFromPDF(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, v1Reply)
	c, err := New("sk-test", "test-model", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	p, err := c.FromPDF(context.Background(), []byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	assert.Len(t, p.Schedule.Entries, 2)
}

func TestFromPDFErrors(t *testing.T) {
	srv := fakeAPI(t, http.StatusInternalServerError, "")
	c, err := New("sk-test", "test-model", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.FromPDF(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyPDF)

	_, err = c.FromPDF(context.Background(), []byte("%PDF-1.4 fake"))
	assert.Error(t, err)
}
