package dto

type FeedbackRequest struct {
	UserId    int64  `json:"userId"`
	SessionId string `json:"session_id"`
	Feedback  string `json:"feedback" validate:"required"`
}

type FeedbackResponse struct {
	Message string `json:"message"`
}
