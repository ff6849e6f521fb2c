package models

type SessionRequest struct {
	// UserID is the identifier persisted by the client on a previous launch.
	// Empty on first launch; the server creates one.
	UserID string `json:"user_id,omitempty"`
	Gender string `json:"gender,omitempty"`
}

type UpdateMeRequest struct {
	Gender               *string `json:"gender,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
}

type SelectProjectRequest struct {
	IsSelected bool `json:"is_selected"`
}

type DeleteProjectsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type PurchaseRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
