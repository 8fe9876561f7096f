package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Entry describes a system event to be recorded.
type Entry struct {
	EventType   string
	UserID      *snowflake.ID
	ActorID     string
	EntityType  string
	EntityID    *string
	Properties  map[string]any
	Description string
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]*SystemEvent, error)
}

var (
	ErrMissingEventType  = errors.New("missing_event_type")
	ErrMissingEntityType = errors.New("missing_entity_type")
)
