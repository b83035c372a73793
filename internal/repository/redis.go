package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/curtistech/unlock-server/internal/model"
	"github.com/curtistech/unlock-server/internal/redis"
)

// saveScript upserts the JSON record, carrying state, usedAt and createdAt
// over from an existing record.
// KEYS[1] = record key, KEYS[2] = codes set, KEYS[3] = session index key
// ARGV[1] = record JSON, ARGV[2] = code, ARGV[3] = "1" when a session is set
var saveScript = goredis.NewScript(`
local rec = cjson.decode(ARGV[1])
local existing = redis.call('GET', KEYS[1])
if existing then
	local cur = cjson.decode(existing)
	rec.state = cur.state
	rec.usedAt = cur.usedAt
	rec.createdAt = cur.createdAt
end
redis.call('SET', KEYS[1], cjson.encode(rec))
redis.call('SADD', KEYS[2], ARGV[2])
if ARGV[3] == '1' then
	redis.call('SET', KEYS[3], ARGV[2], 'NX')
end
return 1
`)

// markUsedScript flips an unused record to used.
// KEYS[1] = record key; ARGV[1] = usedAt (RFC 3339)
// Returns 1 on success, 0 when missing or already used.
var markUsedScript = goredis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if not existing then
	return 0
end
local rec = cjson.decode(existing)
if rec.state == 'used' then
	return 0
end
rec.state = 'used'
rec.usedAt = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(rec))
return 1
`)

type redisStore struct {
	client *goredis.Client
}

// NewRedisStore keeps one JSON document per code plus a session index.
func NewRedisStore(client *goredis.Client) RedemptionStore {
	return &redisStore{client: client}
}

func (s *redisStore) FindByCode(ctx context.Context, code string) (*model.Redemption, error) {
	data, err := s.client.Get(ctx, redis.RedemptionKey(code)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRedemption(data)
}

func (s *redisStore) FindBySessionID(ctx context.Context, sessionID string) (*model.Redemption, error) {
	code, err := s.client.Get(ctx, redis.SessionKey(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.FindByCode(ctx, code)
}

func (s *redisStore) List(ctx context.Context) ([]model.Redemption, error) {
	codes, err := s.client.SMembers(ctx, redis.CodesKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return []model.Redemption{}, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = redis.RedemptionKey(code)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	recs := make([]model.Redemption, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRedemption([]byte(str))
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func (s *redisStore) Save(ctx context.Context, rec *model.Redemption) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal redemption: %w", err)
	}

	hasSession := "0"
	if rec.SessionID() != "" {
		hasSession = "1"
	}

	keys := []string{
		redis.RedemptionKey(rec.Code),
		redis.CodesKey(),
		redis.SessionKey(rec.SessionID()),
	}
	return saveScript.Run(ctx, s.client, keys, string(data), rec.Code, hasSession).Err()
}

func (s *redisStore) MarkUsed(ctx context.Context, code string, usedAt time.Time) (bool, error) {
	res, err := markUsedScript.Run(ctx, s.client,
		[]string{redis.RedemptionKey(code)},
		usedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeRedemption(data []byte) (*model.Redemption, error) {
	var rec model.Redemption
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode redemption: %w", err)
	}
	return &rec, nil
}
