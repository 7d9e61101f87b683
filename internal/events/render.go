package events

import (
	"fmt"
	"log"
	"strings"
)

// Line renders ev as the human-readable log line shown to the operator.
func Line(ev Event) string {
	var b strings.Builder
	if ev.AccountName != "" || ev.AccountID != 0 {
		fmt.Fprintf(&b, "[%s #%d] ", ev.AccountName, ev.AccountID)
	}

	switch ev.Kind {
	case RunStarted:
		fmt.Fprintf(&b, "bot started (%s mode)", ev.Mode)
	case RunStopped:
		b.WriteString("bot stopped")
	case NoEligible:
		b.WriteString("no eligible accounts, stopping")
	case StepStarted:
		fmt.Fprintf(&b, "processing %s order, cycle %s", ev.Side, cycleLabel(ev))
	case StatusChange:
		fmt.Fprintf(&b, "status -> %s", ev.Status)
	case CycleChange:
		fmt.Fprintf(&b, "cycle %s", cycleLabel(ev))
	case AccountDone:
		fmt.Fprintf(&b, "reached cycle cap %s, removed from rotation", cycleLabel(ev))
	case Waiting:
		fmt.Fprintf(&b, "waiting %ds before next order", ev.WaitSec)
	case Countdown:
		fmt.Fprintf(&b, "next order in %ds", ev.WaitSec)
	case Balance:
		fmt.Fprintf(&b, "balance %s BNB", ev.BNB)
		if ev.Tokens != "" {
			fmt.Fprintf(&b, ", %s tokens", ev.Tokens)
		}
	case Route:
		fmt.Fprintf(&b, "using %s", ev.Venue)
	case Attempt:
		fmt.Fprintf(&b, "%s attempt %d/%d amount %s", ev.Side, ev.Attempt, ev.MaxRetries, ev.Amount)
	case Quote:
		fmt.Fprintf(&b, "quote %s, min out %s", ev.Quote, ev.MinOut)
	case NonceUpdate:
		if ev.Nonce != nil {
			fmt.Fprintf(&b, "nonce %d", *ev.Nonce)
		}
	case Approval:
		b.WriteString("approval: " + ev.Msg)
	case TxConfirmed:
		fmt.Fprintf(&b, "%s confirmed %s", ev.Side, ev.TxHash)
	case Retry:
		fmt.Fprintf(&b, "attempt %d failed (%s), retrying", ev.Attempt, ev.ErrKind)
	case OrderDone:
		fmt.Fprintf(&b, "%s order succeeded", ev.Side)
	case OrderFailed:
		fmt.Fprintf(&b, "%s order failed", ev.Side)
		if ev.ErrKind != "" {
			fmt.Fprintf(&b, " [%s]", ev.ErrKind)
		}
	case BalanceUpdate:
		fmt.Fprintf(&b, "balances refreshed: %s BNB, %s tokens", ev.BNB, ev.Tokens)
	default:
		b.WriteString(string(ev.Kind))
	}

	if ev.Msg != "" && ev.Kind != Approval {
		b.WriteString(": " + ev.Msg)
	}
	if ev.Err != "" {
		b.WriteString(": " + ev.Err)
	}
	if ev.ElapsedMs > 0 {
		fmt.Fprintf(&b, " (%.3fs)", float64(ev.ElapsedMs)/1000)
	}
	return b.String()
}

func cycleLabel(ev Event) string {
	cur, limit := 0, 0
	if ev.CurrentCycle != nil {
		cur = *ev.CurrentCycle
	}
	if ev.Cycle != nil {
		limit = *ev.Cycle
	}
	if limit == 0 {
		return fmt.Sprintf("%d/inf", cur)
	}
	return fmt.Sprintf("%d/%d", cur, limit)
}

// LogSink prints every event except countdown ticks through the standard
// logger.
type LogSink struct {
	Prefix string
}

func (s LogSink) Emit(ev Event) {
	if ev.Kind == Countdown {
		return
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = "[bot]"
	}
	log.Printf("%s %s", prefix, Line(ev))
}
