package dto

import "time"

type PutDestinationRequest struct {
	StoreURL       string `json:"store_url" binding:"required,url"`
	ConsumerKey    string `json:"consumer_key" binding:"required"`
	ConsumerSecret string `json:"consumer_secret" binding:"required"`
}

// DestinationResponse never carries the full secret
type DestinationResponse struct {
	StoreURL       string    `json:"store_url"`
	ConsumerKey    string    `json:"consumer_key"`
	ConsumerSecret string    `json:"consumer_secret"`
	UpdatedAt      time.Time `json:"updated_at"`
}
