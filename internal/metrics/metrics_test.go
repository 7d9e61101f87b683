package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
)

func TestSinkCounts(t *testing.T) {
	s := Sink{}

	before := testutil.ToFloat64(mtxOrders.WithLabelValues("buy", "pancakeswap", "ok"))
	s.Emit(events.Event{Kind: events.OrderDone, Side: "buy", Venue: "pancakeswap"})
	if got := testutil.ToFloat64(mtxOrders.WithLabelValues("buy", "pancakeswap", "ok")); got != before+1 {
		t.Fatalf("orders ok %v, want %v", got, before+1)
	}

	beforeRetry := testutil.ToFloat64(mtxRetries.WithLabelValues("NONCE_CONFLICT"))
	s.Emit(events.Event{Kind: events.Retry, ErrKind: "NONCE_CONFLICT"})
	if got := testutil.ToFloat64(mtxRetries.WithLabelValues("NONCE_CONFLICT")); got != beforeRetry+1 {
		t.Fatalf("retries %v", got)
	}

	s.Emit(events.Event{Kind: events.RunStarted})
	if got := testutil.ToFloat64(mtxRunning); got != 1 {
		t.Fatalf("running %v, want 1", got)
	}
	s.Emit(events.Event{Kind: events.RunStopped})
	if got := testutil.ToFloat64(mtxRunning); got != 0 {
		t.Fatalf("running %v, want 0", got)
	}

	s.Emit(events.Event{Kind: events.CycleChange, AccountID: 7, CurrentCycle: events.Int(3)})
	if got := testutil.ToFloat64(mtxAccountCycle.WithLabelValues("7")); got != 3 {
		t.Fatalf("cycle gauge %v, want 3", got)
	}

	s.Emit(events.Event{Kind: events.BalanceUpdate, AccountID: 7, BNB: "0.25"})
	if got := testutil.ToFloat64(mtxAccountBNB.WithLabelValues("7")); got != 0.25 {
		t.Fatalf("bnb gauge %v, want 0.25", got)
	}
}

func TestHandlerServesSeries(t *testing.T) {
	Sink{}.Emit(events.Event{Kind: events.Attempt, Side: "sell"})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `fourcake_order_attempts_total{side="sell"}`) {
		t.Fatalf("attempt series missing from /metrics output")
	}
}
