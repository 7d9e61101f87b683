// Package account holds the per-account trading configuration and the cycle
// and status rules the scheduler drives accounts through.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q (want buy|sell)", s)
	}
}

type Unit string

const (
	UnitValue   Unit = "value"
	UnitPercent Unit = "percent"
)

type Status string

const (
	Pending Status = "pending"
	Placing Status = "placing"
	Failed  Status = "failed"
)

type Account struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	// EncryptedKey is the sealed private key. Only the signer loader opens it.
	EncryptedKey string `json:"private_key"`

	Type         Side   `json:"type"`
	AmountIn     string `json:"amount_in"`
	Unit         Unit   `json:"unit"`
	TokenAddress string `json:"token_address,omitempty"`
	// Slippage in percent; blank uses the global setting.
	Slippage string `json:"slippage,omitempty"`

	IsActive     bool   `json:"is_active"`
	Cycle        int    `json:"cycle"`
	CurrentCycle int    `json:"current_cycle"`
	Status       Status `json:"status"`
	SortOrder    int    `json:"sort_order"`
	WaitFrom     int    `json:"wait_from,omitempty"`
	WaitTo       int    `json:"wait_to,omitempty"`

	BNBBalance   string `json:"bnb_balance,omitempty"`
	TokenBalance string `json:"token_balance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the scheduler may run another cycle for a.
func (a Account) Eligible() bool {
	return a.IsActive && (a.Cycle == 0 || a.CurrentCycle < a.Cycle)
}

// Capped reports whether a has used up a positive cycle cap.
func (a Account) Capped() bool {
	return a.Cycle > 0 && a.CurrentCycle >= a.Cycle
}

// FatalSentinel reports the cycle=1,currentCycle=1 marker written when an
// order failed on amount or funds.
func (a Account) FatalSentinel() bool {
	return a.Cycle == 1 && a.CurrentCycle == 1
}

// NextCycle returns the currentCycle to persist after an attempt, given the
// record as reloaded from the store. When the record carries the fatal
// sentinel nothing is incremented.
//
// This also skips the increment for an account configured with cycle=1 that
// already completed its cycle; that case cannot be told apart from the
// sentinel.
func NextCycle(reloaded Account) (int, bool) {
	if reloaded.FatalSentinel() {
		return reloaded.CurrentCycle, false
	}
	return reloaded.CurrentCycle + 1, true
}

// CanTransition reports whether the engine may move an account from s to
// next. Operator resets bypass this.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case Pending, Failed, "":
		return next == Placing
	case Placing:
		return next == Pending || next == Failed
	default:
		return false
	}
}

var ErrNotFound = errors.New("account not found")

// Store is the record store the engine reads and writes accounts through.
// Updates are read-modify-write per account with no cross-record locking.
type Store interface {
	Accounts(ctx context.Context) ([]Account, error)
	// Eligible returns active accounts with cycle==0 or currentCycle<cycle,
	// ordered by SortOrder then ID.
	Eligible(ctx context.Context) ([]Account, error)
	Account(ctx context.Context, id int64) (Account, error)
	Create(ctx context.Context, a Account) (Account, error)
	Update(ctx context.Context, id int64, p Patch) (Account, error)
	UpdateMany(ctx context.Context, patches map[int64]Patch) error
	Delete(ctx context.Context, id int64) error
}
