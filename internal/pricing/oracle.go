package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	rateCacheKey = "oracle:rate:ltc:usd"
	rateCacheTTL = 60 * time.Second
)

// Oracle consulta a cotação do ativo no oráculo de preço externo.
// Cache Redis da última cotação boa + circuit breaker na chamada HTTP;
// quando tudo falha, devolve a taxa de fallback documentada em config.
type Oracle struct {
	baseURL  string
	fallback decimal.Decimal
	http     *http.Client
	rdb      *redis.Client // opcional; nil desliga o cache
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

func NewOracle(baseURL string, fallback decimal.Decimal, rdb *redis.Client, log *zap.Logger) *Oracle {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "price-oracle",
		Timeout: 30 * time.Second,
	})
	return &Oracle{
		baseURL:  baseURL,
		fallback: fallback,
		http:     &http.Client{Timeout: 2 * time.Second},
		rdb:      rdb,
		breaker:  cb,
		log:      log,
	}
}

// Rate retorna a cotação atual do ativo na moeda de referência.
// Nunca retorna erro: indisponibilidade do oráculo vira fallback, não falha
// do pipeline de crédito.
func (o *Oracle) Rate(ctx context.Context) decimal.Decimal {
	if o.rdb != nil {
		if v, err := o.rdb.Get(ctx, rateCacheKey).Result(); err == nil {
			if d, derr := decimal.NewFromString(v); derr == nil {
				return d
			}
		}
	}

	res, err := o.breaker.Execute(func() (any, error) {
		return o.fetch(ctx)
	})
	if err != nil {
		o.log.Warn("oracle unavailable, using fallback rate",
			zap.String("fallback", o.fallback.String()), zap.Error(err))
		return o.fallback
	}

	rate := res.(decimal.Decimal)
	if o.rdb != nil {
		if err := o.rdb.Set(ctx, rateCacheKey, rate.String(), rateCacheTTL).Err(); err != nil {
			o.log.Warn("rate cache set failed", zap.Error(err))
		}
	}
	return rate
}

// fetch faz a chamada HTTP ao oráculo: GET {base}/rate?asset=ltc&vs=usd
func (o *Oracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/rate?asset=ltc&vs=usd", nil)
	if err != nil {
		return decimal.Zero, err
	}

	res, err := o.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("oracle http %d", res.StatusCode)
	}

	var out struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	if out.Rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("oracle returned non-positive rate %s", out.Rate)
	}
	return out.Rate, nil
}
