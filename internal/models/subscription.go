package models

import "time"

type Plan struct {
	ID        string `json:"id"`
	ProductID int    `json:"product_id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
}

type SubscriptionState struct {
	Entitled    bool      `json:"entitled"`
	Plans       []Plan    `json:"plans"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
