package chat

import "errors"

// Sentinel errors for the chat core. These provide consistent, checkable
// errors for the failure modes callers are expected to handle.
var (
	ErrDuplicateRoom     = errors.New("a room with this name already exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrGuestLimitReached = errors.New("guest limit already reached")
	ErrDuplicateClient   = errors.New("client already exists")
	ErrUnknownClient     = errors.New("client not found")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrManagerClosed     = errors.New("chat manager is shut down")
)
