package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"barbershop-billing/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

type Generator interface {
	// NextInvoiceCode returns a human readable code for the invoice of the
	// billed period, e.g. INV-2609-00AKX.
	NextInvoiceCode(ctx context.Context, year, month int) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextInvoiceCode(ctx context.Context, year, month int) (string, error) {
	period := fmt.Sprintf("%02d%02d", year%100, month)
	key := rediskey.BuildInvoiceSequenceKey(period)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		// keep the counter around long enough for late manual invoices
		_ = g.rdb.Expire(ctx, key, 400*24*time.Hour).Err()
	}

	return formatCode("INV", period, seq)
}

func formatCode(prefix, period string, seq int64) (string, error) {
	// Base36 padded to 3 chars plus 2 random chars
	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, period, encodedSeq, randSuffix), nil
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
