package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

type errStore struct{ err error }

func (s errStore) GetApproval(context.Context, string) (Approval, bool, error) {
	return Approval{}, false, s.err
}

type panicStore struct{}

func (panicStore) GetApproval(context.Context, string) (Approval, bool, error) {
	panic("connection reset")
}

func TestGateCheck(t *testing.T) {
	store := NewMemoryStore(
		Approval{Hash: "good", Approved: true},
		Approval{Hash: "revoked", Approved: false},
	)

	tests := []struct {
		name   string
		store  ApprovalStore
		hash   string
		ok     bool
		reason string
	}{
		{"no table", nil, "good", false, ReasonNoTable},
		{"no hash", store, "", false, ReasonNoHash},
		{"approved", store, "good", true, ReasonApproved},
		{"approved false", store, "revoked", false, ReasonNotApproved},
		{"missing record", store, "unknown", false, ReasonNotApproved},
		{"lookup error", errStore{err: errors.New("throttled")}, "good", false, ReasonLookupError},
		{"lookup panic", panicStore{}, "good", false, ReasonLookupError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewGate(tt.store, nil).Check(context.Background(), tt.hash)
			assert.Equal(t, tt.ok, res.Approved)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.hash, res.Hash)
			if tt.ok {
				assert.NoError(t, res.Err())
			} else {
				err := res.Err()
				require.Error(t, err)
				assert.Equal(t, gateerrors.ErrCodeBundleNotApproved, gateerrors.CodeOf(err))
				assert.True(t, gateerrors.IsTerminal(err))
				assert.False(t, gateerrors.IsRetryable(err))
			}
		})
	}
}

func TestGateCheckIsIdempotent(t *testing.T) {
	g := NewGate(NewMemoryStore(Approval{Hash: "h", Approved: true}), nil)
	assert.Equal(t, g.Check(context.Background(), "h"), g.Check(context.Background(), "h"))
}

func TestComputeHash(t *testing.T) {
	fsys := fstest.MapFS{
		"a.rego": &fstest.MapFile{Data: []byte("package a\n")},
		"b.go":   &fstest.MapFile{Data: []byte("package b\n")},
	}
	sum := sha256.Sum256([]byte("package a\npackage b\n"))

	got, err := ComputeHash(fsys, []string{"a.rego", "missing.go", "b.go"})
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)

	reordered, err := ComputeHash(fsys, []string{"b.go", "a.rego"})
	require.NoError(t, err)
	assert.NotEqual(t, got, reordered)

	empty, err := ComputeHash(fstest.MapFS{}, DefaultTargets)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", empty)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "CONFIG#BUNDLE#abc", Key("abc"))
	h, ok := HashFromKey("CONFIG#BUNDLE#abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", h)
	_, ok = HashFromKey("other")
	assert.False(t, ok)
}

func TestMemoryStoreWriter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, found, err := s.GetApproval(ctx, "h")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutApproval(ctx, Approval{Hash: "h", Approved: true}))
	a, found, err := s.GetApproval(ctx, "h")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, a.Approved)
}

type fakeRedis struct {
	hashes map[string]map[string]string
	err    error
}

func (f *fakeRedis) HGet(_ context.Context, key, field string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.hashes[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.hashes[key][values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{hashes: map[string]map[string]string{
		"CONFIG#BUNDLE#garbled": {"approved": "maybe"},
	}}
	s := &RedisStore{client: fake}

	_, found, err := s.GetApproval(ctx, "h")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutApproval(ctx, Approval{Hash: "h", Approved: true}))
	assert.Equal(t, "true", fake.hashes["CONFIG#BUNDLE#h"]["approved"])

	a, found, err := s.GetApproval(ctx, "h")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, a.Approved)

	a, found, err = s.GetApproval(ctx, "garbled")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, a.Approved)

	require.NoError(t, s.Ping(ctx))

	down := &RedisStore{client: &fakeRedis{err: errors.New("dial tcp: refused")}}
	assert.Error(t, down.Ping(ctx))
	res := NewGate(down, nil).Check(ctx, "h")
	assert.Equal(t, ReasonLookupError, res.Reason)
}
