package bundle

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MemoryStore is an in-process approval store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]bool
}

// NewMemoryStore returns a store seeded with the given approvals.
func NewMemoryStore(approvals ...Approval) *MemoryStore {
	s := &MemoryStore{records: map[string]bool{}}
	for _, a := range approvals {
		s.records[Key(a.Hash)] = a.Approved
	}
	return s
}

// GetApproval implements ApprovalStore.
func (s *MemoryStore) GetApproval(_ context.Context, hash string) (Approval, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	approved, ok := s.records[Key(hash)]
	return Approval{Hash: hash, Approved: approved}, ok, nil
}

// PutApproval implements ApprovalWriter.
func (s *MemoryStore) PutApproval(_ context.Context, a Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[Key(a.Hash)] = a.Approved
	return nil
}

const approvedField = "approved"

// redisHashClient is the subset of redis.Cmdable the store uses.
type redisHashClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps approvals as Redis hashes at CONFIG#BUNDLE#<hash> with an
// "approved" field of "true" or "false".
type RedisStore struct {
	client redisHashClient
}

// NewRedisStore connects to addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// GetApproval implements ApprovalStore. An unparsable field reads as not
// approved.
func (s *RedisStore) GetApproval(ctx context.Context, hash string) (Approval, bool, error) {
	val, err := s.client.HGet(ctx, Key(hash), approvedField).Result()
	if err == redis.Nil {
		return Approval{Hash: hash}, false, nil
	}
	if err != nil {
		return Approval{}, false, err
	}
	approved, perr := strconv.ParseBool(val)
	return Approval{Hash: hash, Approved: perr == nil && approved}, true, nil
}

// PutApproval implements ApprovalWriter.
func (s *RedisStore) PutApproval(ctx context.Context, a Approval) error {
	return s.client.HSet(ctx, Key(a.Hash), approvedField, strconv.FormatBool(a.Approved)).Err()
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
