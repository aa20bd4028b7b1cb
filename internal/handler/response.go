package handler

import (
	"net/http"

	"github.com/promptparty/server-go/internal/httputil"
	"github.com/promptparty/server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// formatSession shapes a session snapshot for API responses. Vote targets
// stay hidden until results are out; only the tally of who has voted shows.
func formatSession(session *model.Session) map[string]any {
	resp := map[string]any{
		"id":              session.ID,
		"creatorId":       session.CreatorID,
		"status":          session.Status,
		"prompt":          session.Prompt,
		"participants":    session.Participants,
		"answerCount":     len(session.Answers),
		"voteCount":       len(session.Votes),
		"maxParticipants": session.MaxParticipants,
		"createdAt":       session.CreatedAt,
	}
	if session.Status == model.StatusResults || session.Status == model.StatusClosed {
		resp["results"] = session.Results
	}
	return resp
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
