package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptparty/server-go/internal/game"
	"github.com/promptparty/server-go/internal/model"
	"github.com/promptparty/server-go/internal/notify"
	"github.com/promptparty/server-go/internal/scheduler"
	"github.com/promptparty/server-go/internal/store"
)

type nopSnapshotter struct{}

func (nopSnapshotter) LoadAll(context.Context) ([]model.Session, error) { return nil, nil }
func (nopSnapshotter) SaveAll(context.Context, []model.Session) error   { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Event) {}

func newTestRouter(t *testing.T) (chi.Router, *game.Lifecycle) {
	t.Helper()

	st := store.New(nopSnapshotter{}, time.Hour)
	sched := scheduler.New(time.Hour, func(scheduler.Reminder) {})
	lifecycle := game.NewLifecycle(st, nopNotifier{}, sched, game.Defaults{
		MaxParticipants:        4,
		MinAnswersToVote:       2,
		MinParticipantsToStart: 2,
		ResultsCloseAfter:      30 * time.Minute,
	})

	r := chi.NewRouter()
	r.Mount("/v1/sessions", NewSessionHandler(lifecycle).Routes())
	return r, lifecycle
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestSessionAPIFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	// Create with a prompt: the game opens straight into answer collection.
	rec, created := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]any{
		"creatorId":   "u1",
		"creatorName": "Alice",
		"prompt":      "Best pizza topping?",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := created["id"].(string)
	require.Len(t, id, 6)
	assert.Equal(t, "collecting_answers", created["status"])

	base := "/v1/sessions/" + id

	rec, _ = doJSON(t, router, http.MethodPost, base+"/join", map[string]any{
		"participantId": "u2", "name": "Bob",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, joined := doJSON(t, router, http.MethodPost, base+"/join", map[string]any{
		"participantId": "u3", "name": "Carol",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, joined["participants"], 3)

	for user, answer := range map[string]string{
		"u1": "pineapple", "u2": "pepperoni", "u3": "mushrooms",
	} {
		rec, _ = doJSON(t, router, http.MethodPost, base+"/answers", map[string]any{
			"participantId": user, "text": answer,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, voting := doJSON(t, router, http.MethodPost, base+"/start-voting", map[string]any{
		"creatorId": "u1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "voting", voting["status"])

	// Answers stay hidden from the session resource until results.
	rec, fetched := doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, fetched, "results")
	assert.Equal(t, float64(3), fetched["answerCount"])

	rec, _ = doJSON(t, router, http.MethodPost, base+"/votes", map[string]any{
		"voterId": "u1", "targetIds": []string{"u2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, router, http.MethodPost, base+"/votes", map[string]any{
		"voterId": "u2", "targetIds": []string{"u3"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Last eligible ballot finalizes the round.
	rec, final := doJSON(t, router, http.MethodPost, base+"/votes", map[string]any{
		"voterId": "u3", "targetIds": []string{"u2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "results", final["status"])

	results, ok := final["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)
	assert.Equal(t, "u2", first["participantId"])
	assert.Equal(t, float64(2), first["voteCount"])

	rec, _ = doJSON(t, router, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionAPIValidation(t *testing.T) {
	cases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "create without a name",
			method:     http.MethodPost,
			path:       "/v1/sessions",
			body:       map[string]any{"creatorId": "u1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "create with malformed body",
			method:     http.MethodPost,
			path:       "/v1/sessions",
			body:       nil,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "join an unknown session",
			method:     http.MethodPost,
			path:       "/v1/sessions/ZZZZZZ/join",
			body:       map[string]any{"participantId": "u2", "name": "Bob"},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "vote before voting opens",
			method:     http.MethodPost,
			path:       "", // filled in below with a fresh session
			body:       map[string]any{"voterId": "u1", "targetIds": []string{"u2"}},
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_STATE",
		},
		{
			name:       "prompt without creatorId",
			method:     http.MethodPost,
			path:       "",
			body:       map[string]any{"text": "Question?"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_REQUIRED",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(t)

			path := tc.path
			if path == "" {
				_, created := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]any{
					"creatorId": "u1", "creatorName": "Alice", "prompt": "Q?",
				})
				id := created["id"].(string)
				if strings.Contains(tc.name, "vote") {
					path = fmt.Sprintf("/v1/sessions/%s/votes", id)
				} else {
					path = fmt.Sprintf("/v1/sessions/%s/prompt", id)
				}
			}

			rec, resp := doJSON(t, router, tc.method, path, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, resp["code"])
		})
	}
}

func TestSessionAPIPermissions(t *testing.T) {
	t.Run("only the creator starts voting", func(t *testing.T) {
		router, _ := newTestRouter(t)

		_, created := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]any{
			"creatorId": "u1", "creatorName": "Alice", "prompt": "Q?",
		})
		id := created["id"].(string)
		doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/join", map[string]any{
			"participantId": "u2", "name": "Bob",
		})

		rec, resp := doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/start-voting", map[string]any{
			"creatorId": "u2",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", resp["code"])
	})

	t.Run("session ids match case-insensitively", func(t *testing.T) {
		router, _ := newTestRouter(t)

		_, created := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]any{
			"creatorId": "u1", "creatorName": "Alice",
		})
		id := created["id"].(string)

		rec, fetched := doJSON(t, router, http.MethodGet, "/v1/sessions/"+strings.ToLower(id), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, fetched["id"])
	})
}

func TestSessionAPIList(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]any{
			"creatorId": fmt.Sprintf("u%d", i), "creatorName": "Player",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, resp := doJSON(t, router, http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["sessions"], 3)
}

func TestFinalizeEndpoint(t *testing.T) {
	t.Run("force finalize with outstanding ballots", func(t *testing.T) {
		router, _ := newTestRouter(t)

		_, created := doJSON(t, router, http.MethodPost, "/v1/sessions", map[string]any{
			"creatorId": "u1", "creatorName": "Alice", "prompt": "Q?",
		})
		id := created["id"].(string)
		base := "/v1/sessions/" + id

		doJSON(t, router, http.MethodPost, base+"/join", map[string]any{"participantId": "u2", "name": "Bob"})
		doJSON(t, router, http.MethodPost, base+"/answers", map[string]any{"participantId": "u1", "text": "a1"})
		doJSON(t, router, http.MethodPost, base+"/answers", map[string]any{"participantId": "u2", "text": "a2"})
		doJSON(t, router, http.MethodPost, base+"/start-voting", map[string]any{"creatorId": "u1"})
		doJSON(t, router, http.MethodPost, base+"/votes", map[string]any{"voterId": "u1", "targetIds": []string{"u2"}})

		// Without force the missing ballot blocks finalization.
		rec, resp := doJSON(t, router, http.MethodPost, base+"/finalize", map[string]any{})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "INVALID_STATE", resp["code"])

		rec, resp = doJSON(t, router, http.MethodPost, base+"/finalize", map[string]any{"force": true})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "results", resp["status"])
	})
}
