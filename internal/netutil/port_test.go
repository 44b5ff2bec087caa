package netutil

import (
	"net"
	"strings"
	"testing"
)

// reserveAddr grabs an ephemeral port and returns its address plus a release
// function. While held, the address is busy; after release it is free.
func reserveAddr(t *testing.T) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	return ln.Addr().String(), func() { _ = ln.Close() }
}

func freeAddr(t *testing.T) string {
	t.Helper()
	addr, release := reserveAddr(t)
	release()
	return addr
}

func TestSelectBindAddrPrefersConfiguredAddress(t *testing.T) {
	preferred := freeAddr(t)
	decoy := freeAddr(t)

	got, err := SelectBindAddr(preferred, []string{decoy}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != preferred {
		t.Fatalf("SelectBindAddr() = %q; want preferred %q", got, preferred)
	}
}

func TestSelectBindAddrFallsBackWhenPreferredBusy(t *testing.T) {
	busy, release := reserveAddr(t)
	defer release()
	fallback := freeAddr(t)

	got, err := SelectBindAddr(busy, []string{busy, fallback}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != fallback {
		t.Fatalf("SelectBindAddr() = %q; want fallback %q", got, fallback)
	}
}

func TestSelectBindAddrNoFallbackRejectsBusyPreferred(t *testing.T) {
	busy, release := reserveAddr(t)
	defer release()
	fallback := freeAddr(t)

	_, err := SelectBindAddr(busy, []string{fallback}, false)
	if err == nil {
		t.Fatal("expected error with fallback disabled and preferred busy")
	}
	if !strings.Contains(err.Error(), "already in use") {
		t.Fatalf("error = %q; want the in-use preferred address reported", err)
	}
}

func TestSelectBindAddrAllCandidatesBusy(t *testing.T) {
	busyA, releaseA := reserveAddr(t)
	defer releaseA()
	busyB, releaseB := reserveAddr(t)
	defer releaseB()

	_, err := SelectBindAddr(busyA, []string{busyB}, true)
	if err == nil {
		t.Fatal("expected error when every address is busy")
	}
	if !strings.Contains(err.Error(), "no usable bind address") {
		t.Fatalf("error = %q; want candidate exhaustion reported", err)
	}
}

func TestSelectBindAddrCandidatesOnly(t *testing.T) {
	addr := freeAddr(t)

	got, err := SelectBindAddr("", []string{addr}, false)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != addr {
		t.Fatalf("SelectBindAddr() = %q; want %q", got, addr)
	}
}
