package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr(), "token-vault-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "not a url", ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), "", "token-vault"); err == nil {
		t.Fatal("expected error for empty url")
	}
}
