// Package domain contains entities without transport or locking, just meta-data.
package domain

import (
	"fmt"
	"time"
)

type RoomID string

type Room struct {
	ID        RoomID    `json:"room_id"`
	Name      string    `json:"room_name"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"is_active"`
}

// DefaultRoomName is used when a room is created implicitly by a join.
func DefaultRoomName(id RoomID) string {
	return fmt.Sprintf("Conference Room %s", id)
}

func NewRoom(id RoomID, name string) *Room {
	if name == "" {
		name = DefaultRoomName(id)
	}
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}
}
