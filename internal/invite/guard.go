package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"intercom-platform/pkg/utils"
)

// Guard caps concurrent invite fan-outs per apartment. A nil Guard on the
// orchestrator disables the check entirely.
type Guard interface {
	Acquire(ctx context.Context, apartmentID string) (bool, error)
	Release(ctx context.Context, apartmentID string)
}

const (
	// One fan-out at a time per apartment; a second doorman calling the same
	// unit while a ring is in flight is rejected, not queued.
	guardLimit = 1

	// TTL bounds leaked slots if the process dies mid-ring.
	guardTTL = 30 * time.Second
)

// RedisGuard implements Guard over a shared Redis counter with an atomic
// acquire script, so the cap holds across api instances.
type RedisGuard struct {
	rdb *redis.Client
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard { return &RedisGuard{rdb: rdb} }

func guardKey(apartmentID string) string {
	return fmt.Sprintf("invite:apartment:%s", apartmentID)
}

func (g *RedisGuard) Acquire(ctx context.Context, apartmentID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, g.rdb, guardKey(apartmentID), guardLimit, guardTTL)
}

func (g *RedisGuard) Release(ctx context.Context, apartmentID string) {
	// Best-effort: the TTL reclaims the slot if this fails.
	_ = utils.ReleaseConcurrencyCap(ctx, g.rdb, guardKey(apartmentID))
}
