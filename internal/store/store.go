// Package store persists member and controller state by key.
package store

import (
	"context"
	"errors"

	"VoiceEconomy/internal/model"
)

// ErrNotFound is returned when no state is stored under a key.
var ErrNotFound = errors.New("not found")

// Store loads and saves engine state. Implementations must be safe for
// concurrent use.
type Store interface {
	LoadMember(ctx context.Context, memberID string) (*model.MemberActivityState, error)
	SaveMember(ctx context.Context, state *model.MemberActivityState) error
	ListMembers(ctx context.Context) ([]*model.MemberActivityState, error)

	LoadLongTerm(ctx context.Context, memberID string) (*model.MemberLongTermState, error)
	SaveLongTerm(ctx context.Context, state *model.MemberLongTermState) error

	LoadController(ctx context.Context, id string) (*model.ActivityController, error)
	SaveController(ctx context.Context, ctrl *model.ActivityController) error

	Close() error
}
