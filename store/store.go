package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a handle resolves to no live session.
var ErrSessionNotFound = errors.New("store: session not found")

// ErrRefreshReuse is returned by RotateRefreshTokens when the presented
// refresh-token hash is the session's previous chain member. The session
// still exists; the caller decides what reuse of an older token means.
var ErrRefreshReuse = errors.New("store: refresh token reuse")

// ErrRefreshInvalid is returned by RotateRefreshTokens when the presented
// hash matches neither the current nor the previous chain member. A token
// that was never part of the chain carries no theft signal.
var ErrRefreshInvalid = errors.New("store: refresh token not in chain")

// ErrStoreUnavailable wraps Redis transport failures.
var ErrStoreUnavailable = errors.New("store: redis unavailable")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusInvalid  int64 = 4
)

const deleteSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local rec = cjson.decode(data)
redis.call("DEL", KEYS[1])
if rec["userId"] then
  redis.call("SREM", ARGV[1] .. rec["userId"], rec["sessionHandle"])
end
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const rotateRefreshScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

local rec = cjson.decode(data)
local now_ms = tonumber(ARGV[4])

if rec["expiry"] <= now_ms then
  redis.call("DEL", KEYS[1])
  if rec["userId"] then
    redis.call("SREM", ARGV[6] .. rec["userId"], rec["sessionHandle"])
  end
  return {1}
end

if rec["refreshTokenHash1"] ~= ARGV[1] then
  if rec["refreshTokenHash2"] == ARGV[1] then
    return {2, data}
  end
  return {4}
end

rec["refreshTokenHash2"] = rec["refreshTokenHash1"]
rec["refreshTokenHash1"] = ARGV[2]
rec["idRefreshTokenHash"] = ARGV[3]
rec["expiry"] = tonumber(ARGV[5])

local updated = cjson.encode(rec)
redis.call("SET", KEYS[1], updated, "PX", tonumber(ARGV[5]) - now_ms)
return {3, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const patchRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local rec = cjson.decode(data)
rec[ARGV[1]] = cjson.decode(ARGV[2])
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], cjson.encode(rec), "PX", ttl)
else
  redis.call("SET", KEYS[1], cjson.encode(rec))
end
return 1
`

var patchRecordLua = redis.NewScript(patchRecordScript)

// Store is the Redis-backed session backend.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store on the given Redis client. An empty prefix defaults to
// "sess".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) sessionKey(handle string) string {
	return s.prefix + ":s:" + handle
}

func (s *Store) userKeyPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userKeyPrefix() + userID
}

func (s *Store) keysKey() string {
	return s.prefix + ":keys"
}

func (s *Store) handshakeKey() string {
	return s.prefix + ":handshake"
}

// CreateSession persists a new session record and indexes it under its user.
// The record's TTL is derived from its expiry.
func (s *Store) CreateSession(ctx context.Context, rec *SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode session: %w", err)
	}

	ttl := time.Until(time.UnixMilli(rec.ExpiryMS))
	if ttl <= 0 {
		return fmt.Errorf("store: session already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(rec.SessionHandle), data, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.SessionHandle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetSession fetches a live session record by handle.
func (s *Store) GetSession(ctx context.Context, handle string) (*SessionRecord, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if rec.ExpiryMS <= time.Now().UnixMilli() {
		if err := s.deleteSession(ctx, handle); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

// SessionExists reports whether the handle resolves to a live session. Used
// for access-token blacklist checks on the verify path.
func (s *Store) SessionExists(ctx context.Context, handle string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.sessionKey(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// RotateRefreshTokens atomically advances the session's refresh chain. The
// presented hash must equal the stored current one; if it instead matches the
// previous chain member, ErrRefreshReuse is returned along with the
// still-current record so the caller can identify the session's user. A hash
// matching neither returns ErrRefreshInvalid.
//
// On success the record's hashes are swapped, the old current hash retained
// as the previous chain member, its expiry extended to newExpiry, and the
// updated record returned.
func (s *Store) RotateRefreshTokens(
	ctx context.Context,
	handle string,
	providedHash, nextHash, nextIdHash string,
	newExpiry time.Time,
) (*SessionRecord, error) {
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(handle)},
		providedHash,
		nextHash,
		nextIdHash,
		time.Now().UnixMilli(),
		newExpiry.UnixMilli(),
		s.userKeyPrefix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrStoreUnavailable)
	}

	switch code {
	case rotateStatusNotFound, rotateStatusExpired:
		return nil, ErrSessionNotFound
	case rotateStatusReuse:
		rec, decErr := decodeScriptBlob(parts)
		if decErr != nil {
			return nil, decErr
		}
		return rec, ErrRefreshReuse
	case rotateStatusInvalid:
		return nil, ErrRefreshInvalid
	case rotateStatusRotated:
		return decodeScriptBlob(parts)
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %d", ErrStoreUnavailable, code)
	}
}

// UpdateSessionData replaces the record's session data. Reports whether the
// session existed.
func (s *Store) UpdateSessionData(ctx context.Context, handle string, data map[string]any) (bool, error) {
	return s.patchRecord(ctx, handle, "sessionData", data)
}

// UpdateAccessTokenPayload replaces the record's access-token payload.
func (s *Store) UpdateAccessTokenPayload(ctx context.Context, handle string, payload map[string]any) (bool, error) {
	return s.patchRecord(ctx, handle, "accessTokenPayload", payload)
}

// UpdateGrants replaces the record's grants payload.
func (s *Store) UpdateGrants(ctx context.Context, handle string, grants map[string]any) (bool, error) {
	return s.patchRecord(ctx, handle, "grants", grants)
}

func (s *Store) patchRecord(ctx context.Context, handle, field string, value map[string]any) (bool, error) {
	if value == nil {
		value = map[string]any{}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("store: encode %s: %w", field, err)
	}

	existed, err := patchRecordLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(handle)},
		field,
		string(encoded),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteSession removes one session. Reports whether it existed; deleting an
// absent handle is not an error.
func (s *Store) DeleteSession(ctx context.Context, handle string) (bool, error) {
	existed, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(handle)},
		s.userKeyPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return existed == 1, nil
}

func (s *Store) deleteSession(ctx context.Context, handle string) error {
	_, err := s.DeleteSession(ctx, handle)
	return err
}

// DeleteAllForUser removes every session indexed under the user and returns
// the handles that were actually deleted.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	handles, err := s.GetHandlesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(handles))
	for _, handle := range handles {
		existed, err := s.DeleteSession(ctx, handle)
		if err != nil {
			return deleted, err
		}
		if existed {
			deleted = append(deleted, handle)
		}
	}

	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return deleted, nil
}

// GetHandlesForUser lists the live session handles indexed under the user.
// Handles whose records have already expired are pruned from the index.
func (s *Store) GetHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(members))
	for i, handle := range members {
		cmds[i] = pipe.Exists(ctx, s.sessionKey(handle))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	live := make([]string, 0, len(members))
	stale := make([]any, 0)
	for i, cmd := range cmds {
		n, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if n == 1 {
			live = append(live, members[i])
		} else {
			stale = append(stale, members[i])
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return live, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeRecord(data []byte) (*SessionRecord, error) {
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decode session: %w", err)
	}
	if rec.SessionData == nil {
		rec.SessionData = map[string]any{}
	}
	if rec.AccessTokenPayload == nil {
		rec.AccessTokenPayload = map[string]any{}
	}
	if rec.Grants == nil {
		rec.Grants = map[string]any{}
	}
	return &rec, nil
}

func decodeScriptBlob(parts []interface{}) (*SessionRecord, error) {
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: missing session payload in script response", ErrStoreUnavailable)
	}
	switch v := parts[1].(type) {
	case string:
		return decodeRecord([]byte(v))
	case []byte:
		return decodeRecord(v)
	default:
		return nil, fmt.Errorf("%w: invalid session payload in script response", ErrStoreUnavailable)
	}
}
