package stability

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

func TestInvalidateValidateRoundTrip(t *testing.T) {
	v := New()
	inv := v.NewInvalidator()

	if !v.IsStable() {
		t.Fatal("expected initially stable")
	}
	inv.Invalidate()
	if v.IsStable() {
		t.Fatal("expected unstable after invalidate")
	}
	inv.Validate()
	if !v.IsStable() {
		t.Fatal("expected stable after validate")
	}
}

func TestInvalidateIsIdempotentWhileAlreadyInvalid(t *testing.T) {
	v := New()
	inv := v.NewInvalidator()
	inv.Invalidate()
	inv.Invalidate() // should not double-count
	inv.Validate()
	if !v.IsStable() {
		t.Fatal("expected stable after single validate following double invalidate")
	}
}

func TestAwaitStabilityBlocksUntilValidated(t *testing.T) {
	defer leaktest.Check(t)()

	v := New()
	inv := v.NewInvalidator()
	inv.Invalidate()

	done := make(chan struct{})
	go func() {
		v.AwaitStability()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AwaitStability returned before Validate")
	case <-time.After(20 * time.Millisecond):
	}

	inv.Validate()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitStability did not return after Validate")
	}
}

func TestCheckIsStableWhileRejectsInvalidateDuringBlock(t *testing.T) {
	v := New()
	inv := v.NewInvalidator()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic from invalidate during stable-while region")
		}
	}()

	v.CheckIsStableWhile(func() {
		inv.Invalidate()
	})
}

func TestCheckIsStableWhileRejectsWhenUnstable(t *testing.T) {
	v := New()
	inv := v.NewInvalidator()
	inv.Invalidate()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when entering stable-while region while unstable")
		}
	}()

	v.CheckIsStableWhile(func() {})
}

func TestResetDiscardsInFlightInvalidations(t *testing.T) {
	v := New()
	inv := v.NewInvalidator()
	inv.Invalidate()
	v.Reset()
	if !v.IsStable() {
		t.Fatal("expected stable after reset")
	}
}
