package coroutine

import (
	"errors"
	"reflect"
	"testing"
)

func TestSwitch_PingPong(t *testing.T) {
	main := Capture()
	var trace []int
	var worker *Context
	worker = Build(func() {
		for i := 0; i < 3; i++ {
			trace = append(trace, i)
			Switch(worker, main)
		}
		Restore(main)
	}, nil)

	for i := 0; i < 3; i++ {
		Switch(main, worker)
		trace = append(trace, 100+i)
	}
	Switch(main, worker)
	<-worker.Done()

	want := []int{0, 100, 1, 101, 2, 102}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
	if !worker.Started() {
		t.Error("Started() = false after running")
	}
}

func TestBuild_StartsAtEntry(t *testing.T) {
	main := Capture()
	stack, err := NewStack(64)
	if err != nil {
		t.Fatalf("NewStack() err = %v", err)
	}
	got := ""
	c := Build(func() {
		got = "entered"
		Restore(main)
	}, stack)
	if c.Started() {
		t.Fatal("context started before first restore")
	}
	if c.Stack() != stack {
		t.Error("Stack() does not return the stack passed to Build")
	}
	Switch(main, c)
	<-c.Done()
	if got != "entered" {
		t.Errorf("entry not executed, got %q", got)
	}
}

func TestRelease_NeverStarted(t *testing.T) {
	c := Build(func() {
		t.Error("entry ran after release")
	}, nil)
	c.Release()
	select {
	case <-c.Done():
	default:
		t.Fatal("Release() returned before the goroutine finished")
	}
	if c.Started() {
		t.Error("Started() = true for a released context that never ran")
	}
	// Releasing twice is harmless.
	c.Release()
}

func TestRelease_UnwindsParkedContext(t *testing.T) {
	main := Capture()
	unwound := false
	var worker *Context
	worker = Build(func() {
		defer func() { unwound = true }()
		Switch(worker, main)
		t.Error("worker resumed after release")
	}, nil)

	Switch(main, worker)
	worker.Release()
	if !unwound {
		t.Error("deferred calls of the released context did not run")
	}
}

func TestRestore_ReleasedTargetDoesNotBlock(t *testing.T) {
	c := Build(func() {}, nil)
	c.Release()
	Restore(c)
}

func TestNewStack(t *testing.T) {
	tests := []struct {
		size    int
		wantErr bool
	}{
		{32767, false},
		{1, false},
		{0, true},
		{-4, true},
	}
	for _, tt := range tests {
		s, err := NewStack(tt.size)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewStack(%d) err=%v wantErr=%v", tt.size, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, ErrStackSize) {
				t.Errorf("NewStack(%d) err = %v, want ErrStackSize", tt.size, err)
			}
			continue
		}
		if s.Size() != tt.size || len(s.Bytes()) != tt.size {
			t.Errorf("NewStack(%d).Size() = %d", tt.size, s.Size())
		}
		s.Free()
		if s.Size() != 0 || s.Bytes() != nil {
			t.Errorf("Size() after Free = %d, want 0", s.Size())
		}
	}
}

func TestStack_NilSafe(t *testing.T) {
	var s *Stack
	if s.Size() != 0 || s.Bytes() != nil {
		t.Error("nil stack reports a region")
	}
	s.Free()
}
