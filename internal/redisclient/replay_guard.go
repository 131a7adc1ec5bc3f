package redisclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayTTL = 24 * time.Hour

// ReplayGuard remembers gateway notifications that were already
// applied, so byte-identical retries from PayHere short-circuit
// before the database round-trip. It is an optimization only: the
// donation repo's terminal-state rules stay the source of truth, and
// every check fails open when Redis is unreachable.
type ReplayGuard struct {
	client *redis.Client
}

func NewReplayGuard(client *redis.Client) *ReplayGuard {
	return &ReplayGuard{client: client}
}

// Seen reports whether this exact notification was already processed.
func (g *ReplayGuard) Seen(ctx context.Context, orderID, statusCode, signature string) bool {
	if g == nil || g.client == nil {
		return false
	}

	n, err := g.client.Exists(ctx, key(orderID, statusCode, signature)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Mark records a processed notification (expires after replayTTL).
func (g *ReplayGuard) Mark(ctx context.Context, orderID, statusCode, signature string) {
	if g == nil || g.client == nil {
		return
	}

	_ = g.client.Set(ctx, key(orderID, statusCode, signature), "1", replayTTL).Err()
}

func key(orderID, statusCode, signature string) string {
	sum := sha256.Sum256([]byte(orderID + "|" + statusCode + "|" + signature))
	return "notify:" + hex.EncodeToString(sum[:16])
}
