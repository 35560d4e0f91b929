package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix   = "signalhub:room:"
	clientKeyPrefix = "signalhub:client:"
)

// Redis is a Store backed by a redis instance, for deployments that want
// room and client records to survive a process restart.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a redis-backed store from an address like
// "localhost:6379".
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies connectivity to the redis instance.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// FindRoomBySlug implements Store.
func (r *Redis) FindRoomBySlug(ctx context.Context, slug string) (*RoomRecord, error) {
	raw, err := r.rdb.Get(ctx, roomKeyPrefix+slug).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching room %q: %w", slug, err)
	}
	var room RoomRecord
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("decoding room %q: %w", slug, err)
	}
	return &room, nil
}

// FindClientByID implements Store.
func (r *Redis) FindClientByID(ctx context.Context, id string) (*ClientRecord, error) {
	raw, err := r.rdb.Get(ctx, clientKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching client %q: %w", id, err)
	}
	var client ClientRecord
	if err := json.Unmarshal(raw, &client); err != nil {
		return nil, fmt.Errorf("decoding client %q: %w", id, err)
	}
	return &client, nil
}

// CreateRoom implements Store.
func (r *Redis) CreateRoom(ctx context.Context, room *RoomRecord) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room %q: %w", room.Slug, err)
	}
	return r.rdb.Set(ctx, roomKeyPrefix+room.Slug, raw, 0).Err()
}

// CreateClient implements Store.
func (r *Redis) CreateClient(ctx context.Context, client *ClientRecord) error {
	raw, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("encoding client %q: %w", client.ID, err)
	}
	return r.rdb.Set(ctx, clientKeyPrefix+client.ID, raw, 0).Err()
}

// DeleteRoom implements Store.
func (r *Redis) DeleteRoom(ctx context.Context, slug string) error {
	return r.rdb.Del(ctx, roomKeyPrefix+slug).Err()
}

// DeleteClient implements Store.
func (r *Redis) DeleteClient(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, clientKeyPrefix+id).Err()
}

// Commit implements Store. Redis writes go through immediately.
func (r *Redis) Commit(ctx context.Context) error {
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
