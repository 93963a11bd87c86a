// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

// Draft is an unpersisted question proposal for one pending source.
type Draft struct {
	// ID identifies this particular proposal; a replacement draft gets
	// a fresh ID.
	ID string `json:"id" yaml:"id"`

	// SourceID is the owning source's internal ID.
	SourceID int64 `json:"source_id" yaml:"source_id"`

	// Payload is the full generation output being reviewed.
	Payload types.GenerationPayload `json:"payload" yaml:"payload"`

	// CreatedAt is when this proposal was staged.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// DraftCache holds at most one live draft per source. Staging replaces
// any prior draft wholesale; concurrent writers for the same source are
// last-write-wins. The cache is injected into the Coordinator so tests
// get a fresh instance per case.
type DraftCache struct {
	mu     sync.RWMutex
	drafts map[int64]*Draft
}

// NewDraftCache returns an empty cache.
func NewDraftCache() *DraftCache {
	return &DraftCache{drafts: make(map[int64]*Draft)}
}

// Stage replaces the draft for sourceID with a new proposal.
func (c *DraftCache) Stage(sourceID int64, payload types.GenerationPayload) *Draft {
	draft := &Draft{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.drafts[sourceID] = draft
	c.mu.Unlock()

	return draft
}

// Get returns the live draft for sourceID, if any.
func (c *DraftCache) Get(sourceID int64) (*Draft, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	draft, ok := c.drafts[sourceID]
	return draft, ok
}

// Discard drops the draft for sourceID. Dropping an absent draft is a no-op.
func (c *DraftCache) Discard(sourceID int64) {
	c.mu.Lock()
	delete(c.drafts, sourceID)
	c.mu.Unlock()
}

// Len reports how many drafts are currently staged.
func (c *DraftCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.drafts)
}
