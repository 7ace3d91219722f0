package response

import "time"

type BotResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	LastActive  *time.Time `json:"last_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

type GetBotsResponse struct {
	Bots []BotResponse `json:"bots"`
}

type InitializeBotResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type BotStatusResponse struct {
	Connected bool `json:"connected"`
	Pending   bool `json:"pending"`
}

type ChatResponse struct {
	Text string `json:"text"`
}
