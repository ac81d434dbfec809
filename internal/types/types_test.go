package types

import "testing"

func TestCanTransitionPolicy(t *testing.T) {
	cases := []struct {
		from, to PolicyStatus
		want     bool
	}{
		{PolicyPendingTx, PolicyActive, true},
		{PolicyPendingTx, PolicyFailed, true},
		{PolicyActive, PolicyExpired, true},
		{PolicyActive, PolicyExercised, true},
		{PolicyExercised, PolicySettled, true},
		{PolicyPendingTx, PolicySettled, false},
		{PolicyActive, PolicyPendingTx, false},
		{PolicySettled, PolicyActive, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanAdvanceTx(t *testing.T) {
	cases := []struct {
		from, to TxStatus
		want     bool
	}{
		{TxPending, TxSubmitted, true},
		{TxSubmitted, TxConfirmed, true},
		{TxSubmitted, TxFailed, true},
		{TxConfirmed, TxPending, false},
		{TxFailed, TxSubmitted, false},
		{TxPending, TxPending, true},
	}
	for _, c := range cases {
		if got := CanAdvanceTx(c.from, c.to); got != c.want {
			t.Errorf("CanAdvanceTx(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestResultOkErr(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() {
		t.Fatal("expected Ok result")
	}
	v, isOk := ok.Unwrap()
	if !isOk || v != 42 {
		t.Fatalf("Unwrap() = (%v, %v), want (42, true)", v, isOk)
	}

	errRes := Err[int](OracleErrStale, "stale price")
	if errRes.IsOk() {
		t.Fatal("expected Err result")
	}
	code, msg := errRes.ErrCode()
	if code != OracleErrStale || msg != "stale price" {
		t.Fatalf("ErrCode() = (%d, %q)", code, msg)
	}
}

func TestTierValid(t *testing.T) {
	if !TierConservative.Valid() || !TierBalanced.Valid() || !TierAggressive.Valid() {
		t.Fatal("expected all defined tiers to be valid")
	}
	if Tier("exotic").Valid() {
		t.Fatal("expected unknown tier to be invalid")
	}
}
