package sessionreg

import (
	"testing"

	"github.com/quickfixgo/quickfix"
)

func sid(sender, target string) quickfix.SessionID {
	return quickfix.SessionID{BeginString: "FIX.4.2", SenderCompID: sender, TargetCompID: target}
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := New("")
	a := r.Register(RoleInitiator, sid("US", "THEM"))
	b := r.Register(RoleInitiator, sid("US", "THEM"))
	if a != b {
		t.Error("expected the same state pointer on repeated register")
	}
}

func TestRegistry_FindLoggedOn_OnlyWhenLoggedOn(t *testing.T) {
	r := New("")
	id := sid("US", "THEM")
	r.Register(RoleInitiator, id)

	if _, ok := r.FindLoggedOn(keyOf(RoleInitiator, id)); ok {
		t.Fatal("expected not logged on before MarkLoggedOn")
	}

	r.MarkLoggedOn(RoleInitiator, id)
	st, ok := r.FindLoggedOn(keyOf(RoleInitiator, id))
	if !ok || st.Status != StatusLoggedOn {
		t.Fatal("expected logged on after MarkLoggedOn")
	}
}

func TestRegistry_UnregisterOnlyRemovesCurrentValue(t *testing.T) {
	r := New("")
	id := sid("US", "THEM")
	r.Register(RoleInitiator, id)
	r.MarkLoggedOut(RoleInitiator, id)

	r.Unregister(RoleInitiator, id)
	if _, ok := r.FindLoggedOn(keyOf(RoleInitiator, id)); ok {
		t.Fatal("expected session removed")
	}
}

func TestRegistry_FindAnyLoggedOnInitiator_PrefersAlias(t *testing.T) {
	r := New("PRIMARY")
	a := sid("OTHER", "THEM")
	b := sid("PRIMARY", "THEM")
	r.Register(RoleInitiator, a)
	r.Register(RoleInitiator, b)
	r.MarkLoggedOn(RoleInitiator, a)
	r.MarkLoggedOn(RoleInitiator, b)

	st, ok := r.FindAnyLoggedOnInitiator()
	if !ok {
		t.Fatal("expected a logged on initiator")
	}
	if st.Key.SenderCompID != "PRIMARY" {
		t.Errorf("expected PRIMARY to be preferred, got %s", st.Key.SenderCompID)
	}
}

func TestRegistry_FindLoggedOnInitiatorByAlias_CaseInsensitive(t *testing.T) {
	r := New("")
	id := sid("us-sender", "them")
	r.Register(RoleInitiator, id)
	r.MarkLoggedOn(RoleInitiator, id)

	if _, ok := r.FindLoggedOnInitiatorByAlias("US-SENDER"); !ok {
		t.Error("expected case-insensitive alias match")
	}
}
