package quota

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRedisLocker_MutualExclusion(t *testing.T) {
	url := os.Getenv("AUTOAPPLY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("AUTOAPPLY_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	l := NewRedisLocker(client, 5*time.Second)
	key := "autoapply:test:" + t.Name()

	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, key); err == nil {
		t.Fatal("expected second lock to time out")
	}

	unlock()
	unlock2, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
	unlock2()
}
