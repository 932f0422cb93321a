package model

import "time"

// Attachment: копия вложения платформы, только для чтения.
// ID уникален в пределах всей платформы и входит в имя выходного файла.
type Attachment struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id,omitempty"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Timestamp   time.Time    `json:"timestamp,omitzero"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
