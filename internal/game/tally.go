package game

import (
	"sort"

	"github.com/promptparty/server-go/internal/model"
)

// Tally computes the ranked results for a session. It is a pure function of
// the session's answers and votes.
//
// Every answer author starts at zero. Each ballot awards one point to each of
// its targets independently. The ranking is sorted descending by vote count
// with a stable sort over the answer-submission order, so equal counts rank
// by who answered first.
func Tally(session *model.Session) []model.Result {
	counts := make(map[string]int, len(session.AnswerOrder))
	for _, id := range session.AnswerOrder {
		counts[id] = 0
	}

	for _, targets := range session.Votes {
		for _, target := range targets {
			if _, ok := counts[target]; ok {
				counts[target]++
			}
		}
	}

	results := make([]model.Result, 0, len(session.AnswerOrder))
	for _, id := range session.AnswerOrder {
		answer := session.Answers[id]
		name := ""
		if p := session.Participant(id); p != nil {
			name = p.Name
		}
		results = append(results, model.Result{
			ParticipantID: id,
			Name:          name,
			Text:          answer.Text,
			VoteCount:     counts[id],
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].VoteCount > results[j].VoteCount
	})
	return results
}
