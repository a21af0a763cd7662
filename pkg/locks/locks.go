// Package locks serializes writes to a single game's associations and edges.
package locks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Locker runs fn while holding every key. Keys are always acquired in sorted order so
// two callers locking overlapping key sets cannot deadlock.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// GameKey is the lock key guarding one game. Ids are zero padded so sorted keys are
// in ascending id order.
func GameKey(gameID int64) string {
	return fmt.Sprintf("game:%019d", gameID)
}

// SlugKey guards the creation of a game with slug, compared ignoring case.
func SlugKey(slug string) string {
	return "game-slug:" + strings.ToLower(slug)
}

// GameKeys returns the lock keys for a set of games.
func GameKeys(gameIDs ...int64) []string {
	keys := make([]string, 0, len(gameIDs))
	for _, id := range gameIDs {
		keys = append(keys, GameKey(id))
	}
	return keys
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no caller holds
// or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*refMutex)}
}

func (l *LocalLocker) acquire(key string) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	m := l.locks[key]
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	m.mu.Unlock()
}

// WithLock implements Locker.
func (l *LocalLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys = sortedUnique(keys)
	for _, k := range keys {
		l.acquire(k)
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			l.release(keys[i])
		}
	}()

	return fn(ctx)
}
