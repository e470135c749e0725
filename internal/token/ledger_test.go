package token

import (
	"errors"
	"testing"
)

func TestNewLedger(t *testing.T) {
	l := NewLedger("My Token", "MTK", 18, 100000, "reserve")
	if l.Name() != "My Token" {
		t.Errorf("name = %q, want %q", l.Name(), "My Token")
	}
	if l.Symbol() != "MTK" {
		t.Errorf("symbol = %q, want %q", l.Symbol(), "MTK")
	}
	if l.Decimals() != 18 {
		t.Errorf("decimals = %d, want 18", l.Decimals())
	}
	if l.TotalSupply() != 100000 {
		t.Errorf("total supply = %d, want 100000", l.TotalSupply())
	}
	if got := l.BalanceOf("reserve"); got != 100000 {
		t.Errorf("reserve balance = %d, want the full supply", got)
	}
}

func TestTransfer(t *testing.T) {
	l := NewLedger("My Token", "MTK", 18, 1000, "reserve")
	if err := l.Transfer("reserve", "alice", 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf("alice"); got != 400 {
		t.Errorf("alice balance = %d, want 400", got)
	}
	if got := l.BalanceOf("reserve"); got != 600 {
		t.Errorf("reserve balance = %d, want 600", got)
	}

	err := l.Transfer("alice", "bob", 401)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf("alice"); got != 400 {
		t.Errorf("failed transfer must not move funds: alice = %d", got)
	}
	if got := l.BalanceOf("bob"); got != 0 {
		t.Errorf("failed transfer must not move funds: bob = %d", got)
	}

	// Zero-amount transfers are no-ops even from unknown accounts.
	if err := l.Transfer("nobody", "bob", 0); err != nil {
		t.Errorf("zero transfer: %v", err)
	}
}

func TestVault(t *testing.T) {
	v := NewVault()
	if got := v.BalanceOf("treasury"); got != 0 {
		t.Errorf("fresh vault balance = %d, want 0", got)
	}
	if err := v.Credit("treasury", 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := v.Credit("treasury", 25); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := v.BalanceOf("treasury"); got != 75 {
		t.Errorf("treasury balance = %d, want 75", got)
	}
}
