package models

import "time"

type SessionResponse struct {
	Token    string `json:"token"`
	User     User   `json:"user"`
	LoggedIn bool   `json:"logged_in"`
}

type StylesResponse struct {
	Categories []StyleCategory `json:"categories"`
	Stale      bool            `json:"stale"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

type AvatarsResponse struct {
	Avatars    []Avatar `json:"avatars"`
	Pending    int      `json:"pending"`
	MaxAvatars int      `json:"max_avatars"`
	CanAdd     bool     `json:"can_add"`
}

type GenerationListResponse struct {
	Jobs []JobView `json:"jobs"`
}

type DeleteProjectsResponse struct {
	Deleted int `json:"deleted"`
}

type PurchaseResponse struct {
	Success  bool `json:"success"`
	Entitled bool `json:"entitled"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
