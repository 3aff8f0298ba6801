package artifact

import (
	"context"
	"testing"

	"github.com/depsight/depsight/pkg/errors"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "reports/1.html", "text/html", []byte("<html></html>")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, contentType, err := s.Get(ctx, "reports/1.html")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "<html></html>" {
		t.Errorf("data = %q", data)
	}
	if contentType != "text/html" {
		t.Errorf("contentType = %q", contentType)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	s := NewMemoryStore()
	_, _, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStorePutCopiesData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("original")
	if err := s.Put(ctx, "k", "text/plain", buf); err != nil {
		t.Fatalf("Put: %v", err)
	}
	buf[0] = 'X'

	data, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "original" {
		t.Errorf("stored data aliased caller buffer: %q", data)
	}
}
