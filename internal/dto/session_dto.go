package dto

type Session struct {
	SessionId string `json:"session_id"`
	Title     string `json:"title"`
}

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
	Id        string `json:"id"`
}

// NewSessionId returns whichever id field the backend populated.
func (r *CreateSessionResponse) NewSessionId() string {
	if r.SessionId != "" {
		return r.SessionId
	}
	return r.Id
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type RenameSessionRequest struct {
	Title string `json:"title" validate:"required"`
}
