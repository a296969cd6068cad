package warehouse

import (
	"context"
	"strings"
	"testing"
)

func TestRegisterPanics(t *testing.T) {
	t.Parallel()

	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}

	mustPanic("empty kind", func() { Register("", func(context.Context, Config) (Warehouse, error) { return nil, nil }) })
	mustPanic("nil factory", func() { Register("x", nil) })

	Register("dup-test", func(context.Context, Config) (Warehouse, error) { return nil, nil })
	mustPanic("duplicate", func() {
		Register("dup-test", func(context.Context, Config) (Warehouse, error) { return nil, nil })
	})
}

func TestNewUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Kind: "oracle"}); err == nil || !strings.Contains(err.Error(), "unsupported kind") {
		t.Fatalf("err=%v, want unsupported kind", err)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("missing kind err=nil")
	}
}
