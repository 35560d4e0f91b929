// Package store defines the persistence collaborator of the chat core. The
// in-memory registry held by the manager is authoritative at runtime; the
// store only provides durability across restarts.
package store

import (
	"context"
	"time"
)

// RoomRecord is the durable projection of a room.
type RoomRecord struct {
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	IsPublic   bool      `json:"is_public"`
	GuestLimit int       `json:"guest_limit"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClientRecord is the durable projection of a connected client.
type ClientRecord struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	RoomSlug  string    `json:"room_slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists room and client records. Lookups return (nil, nil) when
// the record does not exist.
type Store interface {
	FindRoomBySlug(ctx context.Context, slug string) (*RoomRecord, error)
	FindClientByID(ctx context.Context, id string) (*ClientRecord, error)
	CreateRoom(ctx context.Context, room *RoomRecord) error
	CreateClient(ctx context.Context, client *ClientRecord) error
	DeleteRoom(ctx context.Context, slug string) error
	DeleteClient(ctx context.Context, id string) error
	// Commit flushes any buffered writes. Implementations that write
	// through may treat it as a no-op.
	Commit(ctx context.Context) error
}
