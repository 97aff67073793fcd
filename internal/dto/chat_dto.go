package dto

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
