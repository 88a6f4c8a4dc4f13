package models

import "time"

// Message kinds. System and notification messages are generated by the
// server (host transfer, timer auto-advance, ...); text comes from members.
const (
	MessageText         = "text"
	MessageSystem       = "system"
	MessageNotification = "notification"
)

// Message is one chat entry. Immutable once created; appended to the room's
// bounded in-memory log and forwarded to the durable store.
type Message struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}
