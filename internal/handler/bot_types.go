package handler

// Bot webhook request/response types. The bot platform adapter posts one
// message per user utterance and renders the returned text.

type BotRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}

type BotResponse struct {
	Text string `json:"text"`
}

func NewBotTextResponse(text string) *BotResponse {
	return &BotResponse{Text: text}
}
