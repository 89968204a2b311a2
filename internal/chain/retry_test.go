package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicyRetriesTransientErrors(t *testing.T) {
	policy := retryPolicy{maxRetries: 3, baseDelay: time.Millisecond}

	attempts := 0
	err := policy.do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicyStopsOnRevert(t *testing.T) {
	policy := retryPolicy{maxRetries: 5, baseDelay: time.Millisecond}

	attempts := 0
	revert := &RevertError{Data: []byte{0x01, 0x02, 0x03, 0x04}}
	err := policy.do(context.Background(), func(context.Context) error {
		attempts++
		return fmt.Errorf("call: %w", revert)
	})
	if !errors.Is(err, revert) {
		t.Fatalf("expected revert error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("revert should not be retried, got %d attempts", attempts)
	}
}

func TestRetryPolicyGivesUp(t *testing.T) {
	policy := retryPolicy{maxRetries: 2, baseDelay: time.Millisecond}

	attempts := 0
	err := policy.do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("timeout")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicyHonoursContext(t *testing.T) {
	policy := retryPolicy{maxRetries: 5, baseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	err := policy.do(ctx, func(context.Context) error {
		cancel()
		return errors.New("unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRevertErrorData(t *testing.T) {
	err := &RevertError{Data: []byte{0xde, 0xad, 0xbe, 0xef}}
	if got := err.ErrorData(); got != "0xdeadbeef" {
		t.Fatalf("error data mismatch: %v", got)
	}

	empty := &RevertError{}
	if empty.ErrorData() != nil {
		t.Fatalf("empty revert should expose nil data")
	}
}
