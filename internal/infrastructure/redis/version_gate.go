package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// advanceScript stores ARGV[1] only if it is greater than the current value.
// Returns 1 when stored, 0 otherwise.
var advanceScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local incoming = tonumber(ARGV[1])
if not current or incoming > tonumber(current) then
    redis.call('SET', KEYS[1], incoming)
    return 1
end
return 0
`)

// VersionGate remembers the highest product version applied by a consumer.
type VersionGate struct {
	client redis.UniversalClient
	scope  string
}

// NewVersionGate scopes keys by consumer so different services keep separate watermarks.
func NewVersionGate(client redis.UniversalClient, scope string) *VersionGate {
	return &VersionGate{client: client, scope: scope}
}

func (g *VersionGate) key(productID string) string {
	return fmt.Sprintf("product:%s:%s:version", productID, g.scope)
}

func (g *VersionGate) Current(ctx context.Context, productID string) (int64, error) {
	v, err := g.client.Get(ctx, g.key(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis version gate: get %s: %w", productID, err)
	}
	return v, nil
}

func (g *VersionGate) Advance(ctx context.Context, productID string, version int64) (bool, error) {
	res, err := advanceScript.Run(ctx, g.client, []string{g.key(productID)}, version).Int64()
	if err != nil {
		return false, fmt.Errorf("redis version gate: advance %s: %w", productID, err)
	}
	return res == 1, nil
}
