package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentchain/core"
)

// ErrSessionExists is returned by Create when the key is already in use.
var ErrSessionExists = errors.New("session already exists")

func notFound(key core.SessionKey) error {
	return fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
}

func exists(key core.SessionKey) error {
	return fmt.Errorf("%w: %s", ErrSessionExists, key)
}

// GetOrCreate returns the session for key, creating it with initial state
// when it does not exist yet. Sessions are reused across invocations.
func GetOrCreate(ctx context.Context, store core.SessionStore, key core.SessionKey, initial map[string]any) (*core.Session, error) {
	sess, err := store.Get(ctx, key)
	if err == nil {
		return sess, nil
	}

	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, err
	}

	sess, err = store.Create(ctx, key, initial)
	if errors.Is(err, ErrSessionExists) {
		// created concurrently
		return store.Get(ctx, key)
	}

	return sess, err
}
