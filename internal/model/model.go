package model

type ChatRequest struct {
	History  []HistoryItem `json:"history,omitempty"`
	Question string        `json:"question" binding:"required"`
	Timezone string        `json:"timezone"`
}

type HistoryItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type EmailDraftRequest struct {
	Instructions string        `json:"instructions"`
	History      []HistoryItem `json:"history,omitempty"`
}

type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

type PublicUser struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
