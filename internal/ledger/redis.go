package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger stores balances as integer keys, entries in a per-owner
// list, and the (jobID, kind) idempotency marker as its own key. One Lua
// script makes the check-balance-apply-append sequence atomic.
type RedisLedger struct {
	redis *redis.Client
}

// NewRedisLedger creates a Redis-backed ledger.
func NewRedisLedger(redisClient *redis.Client) *RedisLedger {
	return &RedisLedger{redis: redisClient}
}

func movementKey(jobID string, kind MovementKind) string {
	return fmt.Sprintf("ledger:mov:%s:%s", jobID, kind)
}

func balanceKey(ownerID string) string {
	return fmt.Sprintf("credits:%s", ownerID)
}

func entriesKey(ownerID string) string {
	return fmt.Sprintf("ledger:entries:%s", ownerID)
}

// KEYS[1] = movement key, KEYS[2] = balance key, KEYS[3] = entries list
// ARGV[1] = signed amount, ARGV[2] = entry JSON
// Returns 1 applied, 0 already applied, -1 insufficient balance.
var moveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local amount = tonumber(ARGV[1])
if amount < 0 then
  local balance = tonumber(redis.call("GET", KEYS[2]) or "0")
  if balance + amount < 0 then
    return -1
  end
end
redis.call("INCRBY", KEYS[2], amount)
redis.call("SET", KEYS[1], ARGV[2])
redis.call("RPUSH", KEYS[3], ARGV[2])
return 1
`)

func (l *RedisLedger) Debit(ctx context.Context, jobID, ownerID string, amount int64, reason string) error {
	return l.move(ctx, jobID, ownerID, -amount, MovementDebit, reason)
}

func (l *RedisLedger) Credit(ctx context.Context, jobID, ownerID string, amount int64, reason string) error {
	return l.move(ctx, jobID, ownerID, amount, MovementCredit, reason)
}

func (l *RedisLedger) move(ctx context.Context, jobID, ownerID string, signed int64, kind MovementKind, reason string) error {
	if signed == 0 || (kind == MovementDebit && signed >= 0) || (kind == MovementCredit && signed <= 0) {
		return ErrInvalidAmount
	}

	entry := Entry{
		JobID:     jobID,
		OwnerID:   ownerID,
		Amount:    signed,
		Kind:      kind,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	keys := []string{movementKey(jobID, kind), balanceKey(ownerID), entriesKey(ownerID)}
	res, err := moveScript.Run(ctx, l.redis, keys, signed, data).Int()
	if err != nil {
		return err
	}
	if res == -1 {
		return ErrInsufficientCredits
	}
	return nil
}

func (l *RedisLedger) HasMovement(ctx context.Context, jobID string, kind MovementKind) (bool, error) {
	n, err := l.redis.Exists(ctx, movementKey(jobID, kind)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) Balance(ctx context.Context, ownerID string) (int64, error) {
	val, err := l.redis.Get(ctx, balanceKey(ownerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func (l *RedisLedger) Deposit(ctx context.Context, ownerID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.redis.IncrBy(ctx, balanceKey(ownerID), amount).Err()
}
