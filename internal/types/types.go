package types

import (
	"time"
)

type User struct {
	Id          string `json:"id"`
	DisplayName string `json:"pseudo"`
	AvatarUri   string `json:"photoUrl,omitempty"`
}

type Room struct {
	Id                 string `json:"id"`
	Name               string `json:"name"`
	LastMessagePreview string `json:"lastMessage,omitempty"`
	LastActivity       int64  `json:"lastActivity,omitempty"`
	ParticipantCount   int    `json:"participants,omitempty"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Message struct {
	Id          string    `json:"id"`
	RoomId      string    `json:"roomId"`
	SenderId    string    `json:"senderId,omitempty"`
	SenderName  string    `json:"senderName"`
	Content     string    `json:"content"`
	TimestampMs int64     `json:"timestamp"`
	ImageData   string    `json:"imageUrl,omitempty"`
	Location    *Location `json:"location,omitempty"`
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.TimestampMs)
}

type Photo struct {
	Id          string `json:"id"`
	Url         string `json:"url"`
	TimestampMs int64  `json:"timestamp"`
	RoomId      string `json:"roomId,omitempty"`
}
