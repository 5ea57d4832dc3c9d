package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/donationpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultStateKey is the key holding the overlay document.
const DefaultStateKey = "donationpulse:state"

// DocumentStore keeps the serialized overlay document under a single key.
type DocumentStore struct {
	rdb *goredis.Client
	key string
}

func NewDocumentStore(client *Client, key string) *DocumentStore {
	if key == "" {
		key = DefaultStateKey
	}
	return &DocumentStore{rdb: client.rdb, key: key}
}

func (s *DocumentStore) Name() string { return "redis" }

// Load returns the stored document or domain.ErrNoDocument when the key is absent.
func (s *DocumentStore) Load(ctx context.Context) ([]byte, error) {
	doc, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	return doc, nil
}

// Save overwrites the stored document. The key never expires.
func (s *DocumentStore) Save(ctx context.Context, doc []byte) error {
	if err := s.rdb.Set(ctx, s.key, doc, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", s.key, err)
	}
	return nil
}
