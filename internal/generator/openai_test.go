package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// fakeCompletions answers the category prompt with fixed titles and every
// clue prompt with a fixed clue list.
func fakeCompletions(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		prompt := req.Messages[len(req.Messages)-1].Content

		var content string
		if strings.Contains(prompt, "categories") {
			content = `{"categories": ["History", "Science", "Film"]}`
		} else {
			content = `{"clues": [` +
				`{"clue": "first clue", "answer": "first answer"},` +
				`{"clue": "second clue", "answer": "second answer"}]}`
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestLLMGenerator(t *testing.T) {
	t.Run("assembles a board from completions", func(t *testing.T) {
		srv := httptest.NewServer(fakeCompletions(t))
		defer srv.Close()

		g := NewLLMGenerator(discardLogger(), srv.URL, "test-key", "")
		board, err := g.GenerateBoard(context.Background(), 2, 2)
		require.NoError(t, err)

		require.Len(t, board.Categories, 2)
		assert.Equal(t, "History", board.Categories[0].Title)
		assert.Equal(t, "Science", board.Categories[1].Title)
		for _, cat := range board.Categories {
			require.Len(t, cat.Clues, 2)
			assert.Equal(t, 200, cat.Clues[0].Value)
			assert.Equal(t, 400, cat.Clues[1].Value)
			assert.Equal(t, "first clue", cat.Clues[0].Text)
			assert.Equal(t, "second answer", cat.Clues[1].Answer)
		}
	})

	t.Run("surfaces API errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintln(w, `{"error": {"message": "rate limited"}}`)
		}))
		defer srv.Close()

		g := NewLLMGenerator(discardLogger(), srv.URL, "test-key", "")
		_, err := g.GenerateBoard(context.Background(), 2, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("rejects malformed model output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			resp := map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": "not json"}},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		g := NewLLMGenerator(discardLogger(), srv.URL, "test-key", "")
		_, err := g.GenerateBoard(context.Background(), 1, 1)
		assert.Error(t, err)
	})

	t.Run("rejects short category lists", func(t *testing.T) {
		srv := httptest.NewServer(fakeCompletions(t))
		defer srv.Close()

		g := NewLLMGenerator(discardLogger(), srv.URL, "test-key", "")
		_, err := g.GenerateBoard(context.Background(), 5, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "categories")
	})
}
