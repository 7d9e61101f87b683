// Package metrics exposes bot activity as Prometheus series. Sink turns the
// event stream into counter and gauge updates; Handler serves /metrics.
//
//   - fourcake_orders_total{side,venue,result}   orders that finished (ok or error kind)
//   - fourcake_order_attempts_total{side}        quote/submit attempts
//   - fourcake_retries_total{kind}               retried attempts by classified error
//   - fourcake_approvals_total                   approval results reported by orders
//   - fourcake_account_failures_total{kind}      accounts marked failed
//   - fourcake_account_cycle{account}            persisted currentCycle per account
//   - fourcake_account_bnb{account}              last refreshed BNB balance
//   - fourcake_running                           1 while a run is active
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
)

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fourcake_orders_total",
			Help: "Orders finished, by side, venue and result",
		},
		[]string{"side", "venue", "result"},
	)

	mtxAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fourcake_order_attempts_total",
			Help: "Order attempts started",
		},
		[]string{"side"},
	)

	mtxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fourcake_retries_total",
			Help: "Attempts retried, by classified error",
		},
		[]string{"kind"},
	)

	mtxApprovals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fourcake_approvals_total",
			Help: "Allowance checks reported by sell orders",
		},
	)

	mtxAccountFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fourcake_account_failures_total",
			Help: "Accounts marked failed, by error kind",
		},
		[]string{"kind"},
	)

	mtxAccountCycle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fourcake_account_cycle",
			Help: "Persisted currentCycle per account",
		},
		[]string{"account"},
	)

	mtxAccountBNB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fourcake_account_bnb",
			Help: "Last refreshed BNB balance per account",
		},
		[]string{"account"},
	)

	mtxRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fourcake_running",
			Help: "1 while the scheduler is running",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxAttempts, mtxRetries, mtxApprovals)
	prometheus.MustRegister(mtxAccountFailures, mtxAccountCycle, mtxAccountBNB, mtxRunning)
}

func Handler() http.Handler { return promhttp.Handler() }

// Sink updates the series from events.
type Sink struct{}

func (Sink) Emit(ev events.Event) {
	switch ev.Kind {
	case events.RunStarted:
		mtxRunning.Set(1)
	case events.RunStopped:
		mtxRunning.Set(0)
	case events.Attempt:
		mtxAttempts.WithLabelValues(ev.Side).Inc()
	case events.Retry:
		mtxRetries.WithLabelValues(ev.ErrKind).Inc()
	case events.Approval:
		mtxApprovals.Inc()
	case events.OrderDone:
		mtxOrders.WithLabelValues(ev.Side, ev.Venue, "ok").Inc()
	case events.OrderFailed:
		mtxOrders.WithLabelValues(ev.Side, ev.Venue, ev.ErrKind).Inc()
	case events.StatusChange:
		if ev.Status == string(account.Failed) {
			mtxAccountFailures.WithLabelValues(ev.ErrKind).Inc()
		}
	case events.CycleChange:
		if ev.CurrentCycle != nil {
			mtxAccountCycle.WithLabelValues(accountLabel(ev)).Set(float64(*ev.CurrentCycle))
		}
	case events.BalanceUpdate:
		if d, err := decimal.NewFromString(ev.BNB); err == nil {
			f, _ := d.Float64()
			mtxAccountBNB.WithLabelValues(accountLabel(ev)).Set(f)
		}
	}
}

func accountLabel(ev events.Event) string {
	return strconv.FormatInt(ev.AccountID, 10)
}
