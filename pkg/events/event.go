package events

import "github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"

// EventType classifies events so each session can decide how to render them.
type EventType int

const (
	EvText         EventType = iota // Raw text (universal fallback)
	EvChat                          // Player chat line
	EvPrivate                       // Private message
	EvAnnouncement                  // Server-wide announcement
	EvStatus                        // Status or bottom-right HUD line
	EvConnect                       // Player connected
	EvDisconnect                    // Player disconnected
	EvSystem                        // Server notice
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvChat:
		return "chat"
	case EvPrivate:
		return "private"
	case EvAnnouncement:
		return "announcement"
	case EvStatus:
		return "status"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is a message flowing through the bus. Text may carry &-color
// escapes; it is wrapped per recipient when delivered.
type Event struct {
	Type    EventType
	Player  string               // Recipient ("" for broadcast)
	Source  string               // Who generated the event
	Text    string               // Message text
	MsgType protocol.MessageType // Requested placement on the client
}
