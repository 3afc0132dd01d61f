package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics captures ledger activity for both staking pools.
type StakingMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	rewardsMinted *prometheus.CounterVec
	tvl           *prometheus.GaugeVec
	rate          *prometheus.GaugeVec
	compensations *prometheus.CounterVec
	tokenSupply   *prometheus.GaugeVec
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the lazily-initialised staking metrics registry.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arkn",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation, pool and outcome.",
			}, []string{"operation", "pool", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "arkn",
				Subsystem: "staking",
				Name:      "operation_duration_seconds",
				Help:      "Latency of ledger operations including external effects.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "pool"}),
			rewardsMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arkn",
				Subsystem: "staking",
				Name:      "rewards_minted_total",
				Help:      "Reward tokens minted by settlement, in base units.",
			}, []string{"pool"}),
			tvl: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arkn",
				Subsystem: "staking",
				Name:      "tvl",
				Help:      "Total principal locked per pool, in base units.",
			}, []string{"pool"}),
			rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arkn",
				Subsystem: "staking",
				Name:      "rate_bps",
				Help:      "Current annual reward rate per pool in basis points.",
			}, []string{"pool"}),
			compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arkn",
				Subsystem: "staking",
				Name:      "compensations_total",
				Help:      "Effect compensations executed after a failed operation.",
			}, []string{"operation", "outcome"}),
			tokenSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arkn",
				Subsystem: "token",
				Name:      "total_supply",
				Help:      "Circulating supply per token symbol, in base units.",
			}, []string{"symbol"}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.rewardsMinted,
			stakingRegistry.tvl,
			stakingRegistry.rate,
			stakingRegistry.compensations,
			stakingRegistry.tokenSupply,
		)
	})
	return stakingRegistry
}

func (m *StakingMetrics) ObserveOperation(operation, pool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if pool == "" {
		pool = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, pool, outcome).Inc()
	m.latency.WithLabelValues(operation, pool).Observe(duration.Seconds())
}

func (m *StakingMetrics) AddRewardsMinted(pool string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsMinted.WithLabelValues(pool).Add(toFloat(amount))
}

func (m *StakingMetrics) SetTVL(pool string, amount *big.Int) {
	if m == nil {
		return
	}
	m.tvl.WithLabelValues(pool).Set(toFloat(amount))
}

func (m *StakingMetrics) SetRate(pool string, bps uint64) {
	if m == nil {
		return
	}
	m.rate.WithLabelValues(pool).Set(float64(bps))
}

func (m *StakingMetrics) ObserveCompensation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	m.compensations.WithLabelValues(operation, outcome).Inc()
}

func (m *StakingMetrics) SetTokenSupply(symbol string, amount *big.Int) {
	if m == nil {
		return
	}
	m.tokenSupply.WithLabelValues(symbol).Set(toFloat(amount))
}

func toFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	return value
}
