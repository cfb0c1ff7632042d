package models

import (
	"github.com/google/uuid"
)

type OutboundMessage struct {
	Key     string
	Body    string
	Headers map[string]string
}

func NewOutboundMessage(body string) OutboundMessage {
	return OutboundMessage{
		Key:     uuid.NewString(),
		Body:    body,
		Headers: map[string]string{},
	}
}
