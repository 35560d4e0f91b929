package store

import (
	"context"
	"sync"
)

// Memory is an in-memory Store used in tests and single-node deployments.
type Memory struct {
	mu      sync.RWMutex
	rooms   map[string]RoomRecord
	clients map[string]ClientRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string]RoomRecord),
		clients: make(map[string]ClientRecord),
	}
}

// FindRoomBySlug implements Store.
func (m *Memory) FindRoomBySlug(ctx context.Context, slug string) (*RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if room, ok := m.rooms[slug]; ok {
		return &room, nil
	}
	return nil, nil
}

// FindClientByID implements Store.
func (m *Memory) FindClientByID(ctx context.Context, id string) (*ClientRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if client, ok := m.clients[id]; ok {
		return &client, nil
	}
	return nil, nil
}

// CreateRoom implements Store.
func (m *Memory) CreateRoom(ctx context.Context, room *RoomRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.Slug] = *room
	return nil
}

// CreateClient implements Store.
func (m *Memory) CreateClient(ctx context.Context, client *ClientRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = *client
	return nil
}

// DeleteRoom implements Store.
func (m *Memory) DeleteRoom(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, slug)
	return nil
}

// DeleteClient implements Store.
func (m *Memory) DeleteClient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, id)
	return nil
}

// Commit implements Store. Writes are applied immediately.
func (m *Memory) Commit(ctx context.Context) error {
	return nil
}
