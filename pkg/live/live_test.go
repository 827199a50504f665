package live

import (
	"context"
	"testing"
)

func TestSSRInfoCarrier(t *testing.T) {
	info := &SSRInfo{Base: "http://127.0.0.1:4600"}
	ctx := WithSSRInfo(context.Background(), info)

	if got := SSRInfoFrom(ctx); got != info {
		t.Errorf("SSRInfoFrom() = %p, want %p", got, info)
	}
	if got := SSRInfoFrom(context.Background()); got != nil {
		t.Errorf("SSRInfoFrom(empty) = %v, want nil", got)
	}
}

func TestRuntimeError_Message(t *testing.T) {
	err := &RuntimeError{Phase: PhaseLoad, Message: "Cannot find module './db'"}
	want := "runtime load: Cannot find module './db'"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
