package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"gas_price_value", errors.New("insufficient funds for gas * price + value: balance 0"), InsufficientFunds},
		{"insufficient_balance_upper", errors.New("execution reverted: Insufficient Balance"), InsufficientFunds},
		{"nonce_too_low", errors.New("nonce too low"), NonceConflict},
		{"underpriced", errors.New("replacement transaction underpriced"), NonceConflict},
		{"already_known", errors.New("already known"), NonceConflict},
		{"same_hash", errors.New("transaction with same hash was already imported"), NonceConflict},
		{"known_tx", errors.New("known transaction: 0xabc"), NonceConflict},
		{"revert", errors.New("execution reverted"), TransactionFailed},
		{"token_not_found", New(TokenNotFound, "token not listed"), TokenNotFound},
		{"timeout_mentions_nonce", New(Timeout, "timeout reading pending nonce"), Timeout},
		{"wrapped_insufficient", Wrap(TransactionFailed, errors.New("insufficient funds"), "submit swap"), InsufficientFunds},
		{"nonce_read_transport_error", fmt.Errorf("confirmed nonce for 0xabc: %w", errors.New("dial tcp: connection refused")), TransactionFailed},
		{"wrapped_nonce_too_low", fmt.Errorf("send swap: %w", errors.New("nonce too low")), NonceConflict},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	t.Parallel()

	base := New(InvalidAmount, "balance is zero")
	err := fmt.Errorf("place buy: %w", base)
	if got := KindOf(err); got != InvalidAmount {
		t.Fatalf("got %q, want %q", got, InvalidAmount)
	}
	if !Is(err, InvalidAmount) {
		t.Fatalf("Is() = false")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain error should have no kind")
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := Wrap(TransactionFailed, cause, "submit swap")
	if got, want := err.Error(), "submit swap: dial tcp: refused"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	if Wrap(TransactionFailed, nil, "x") != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
}
