package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"payouts-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-readable codes for payment releases.
type Generator interface {
	NextReleaseCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

// NextReleaseCode returns REL-YYMMDD-<base36 seq><2 random chars>. The counter resets daily.
func (g *RedisGenerator) NextReleaseCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "REL")
}

// nextDailyCode bumps the per-day counter and pins its expiry to the end of the UTC day in one MULTI.
func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := g.now().UTC()
	day := now.Format("060102")
	key := rediskey.BuildDailySequenceKey(prefix, day)

	var incr *redis.IntCmd
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, now.Truncate(24*time.Hour).Add(24*time.Hour))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("allocate %s sequence: %w", prefix, err)
	}

	suffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}
	return formatCode(prefix, day, incr.Val(), suffix), nil
}

func formatCode(prefix, day string, seq int64, suffix string) string {
	encoded := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encoded) < 3 {
		encoded = strings.Repeat("0", 3-len(encoded)) + encoded
	}
	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encoded, suffix)
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
