package etl

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, ok, err := g.TryAcquire(ctx, "breweries_data_pipeline")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := g.TryAcquire(ctx, "breweries_data_pipeline"); ok {
		t.Fatal("second acquire succeeded while held")
	}
	if _, ok, _ := g.TryAcquire(ctx, "other"); !ok {
		t.Fatal("acquire of a different key failed")
	}

	release()
	release()
	again, ok, _ := g.TryAcquire(ctx, "breweries_data_pipeline")
	if !ok {
		t.Fatal("acquire after release failed")
	}
	again()
}

func TestRedisGuard_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping Redis integration test")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	g := NewRedisGuard(client, time.Minute)
	g.Prefix = "breweries:test:" + t.Name() + ":"
	defer client.Del(ctx, g.Prefix+"dag")

	release, ok, err := g.TryAcquire(ctx, "dag")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := g.TryAcquire(ctx, "dag"); err != nil || ok {
		t.Fatalf("second acquire: ok=%v err=%v", ok, err)
	}
	release()

	release2, ok, err := g.TryAcquire(ctx, "dag")
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
	release2()
}
