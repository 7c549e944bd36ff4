package registry

import (
	"context"
	"errors"
	"testing"
)

func okHandler(result string) Handler {
	return func(ctx context.Context) (*string, error) {
		return &result, nil
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("SayHello", KindBuiltinCapture, "echo Hello!", okHandler("Hello!")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, found := r.Lookup("SayHello")
	if !found {
		t.Fatal("expected to find SayHello")
	}
	if p.Name != "SayHello" {
		t.Errorf("expected name SayHello, got %s", p.Name)
	}
	if p.Kind != KindBuiltinCapture {
		t.Errorf("expected KindBuiltinCapture, got %s", p.Kind)
	}
}

func TestRegistry_LookupMiss(t *testing.T) {
	r := NewRegistry()
	if _, found := r.Lookup("nonexistent"); found {
		t.Error("expected lookup miss")
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("GetCmdFree", KindBuiltinCapture, "free -m", okHandler("mem"))

	err := r.Register("GetCmdFree", KindBuiltinCapture, "free -m", okHandler("mem"))
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}

	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Errorf("expected *DuplicateNameError, got %T", err)
	}
}

func TestRegistry_ListIsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"GetCmdFree", "SayHello", "GetCmdIostat", "ListAllMethod"}
	for _, n := range names {
		if err := r.Register(n, KindBuiltinCapture, n, okHandler(n)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := r.List()
	if len(got) != len(names) {
		t.Fatalf("expected %d names, got %d", len(names), len(got))
	}
	for i, n := range names {
		if got[i] != n {
			t.Errorf("expected name %d to be %s, got %s", i, n, got[i])
		}
	}
}

func TestRegistry_Count(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("a", KindRawProcRead, "/proc/meminfo", okHandler("a"))
	_ = r.Register("b", KindRawProcRead, "/proc/loadavg", okHandler("b"))

	if r.Count() != 2 {
		t.Errorf("expected count 2, got %d", r.Count())
	}
}

func TestProcedure_InvokeSerializesConcurrentCalls(t *testing.T) {
	var inFlight, maxInFlight int
	started := make(chan struct{})
	release := make(chan struct{})

	p := &Procedure{
		Name: "GetCmdPerfFaults",
		Kind: KindPerfCapture,
		Handler: func(ctx context.Context) (*string, error) {
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			started <- struct{}{}
			<-release
			inFlight--
			s := "ok"
			return &s, nil
		},
	}

	// Both callers are started before either is released, so without
	// the procedure's mutex the second would enter the handler while the
	// first is still blocked on release.
	done := make(chan struct{})
	go func() {
		if _, err := p.Invoke(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		close(done)
	}()

	done2 := make(chan struct{})
	go func() {
		if _, err := p.Invoke(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		close(done2)
	}()

	<-started
	release <- struct{}{}
	<-started
	release <- struct{}{}
	<-done
	<-done2

	if maxInFlight != 1 {
		t.Errorf("expected at most 1 concurrent invocation of the same procedure, saw %d", maxInFlight)
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindRawProcRead:    "raw-proc-read",
		KindExternalShell:  "external-shell",
		KindBuiltinCapture: "builtin-capture",
		KindPerfCapture:    "perf-capture",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
