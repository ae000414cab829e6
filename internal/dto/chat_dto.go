package dto

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Timestamp    time.Time     `json:"timestamp"`
	ExternalLink *ExternalLink `json:"externalLink,omitempty"`
	Sources      []Source      `json:"sources,omitempty"`
}

type ExternalLink struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type Source struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

type SendChatRequest struct {
	Message string `json:"message" validate:"required"`
}

type SendChatResponse struct {
	Message      string        `json:"message"`
	Reply        string        `json:"reply"`
	Answer       string        `json:"answer"`
	Timestamp    *time.Time    `json:"timestamp"`
	ExternalLink *ExternalLink `json:"external_link"`
	Sources      []Source      `json:"sources"`
}

// AssistantContent returns the reply text; the backend has used
// different field names for it across versions.
func (r *SendChatResponse) AssistantContent() string {
	switch {
	case r.Reply != "":
		return r.Reply
	case r.Answer != "":
		return r.Answer
	default:
		return r.Message
	}
}
