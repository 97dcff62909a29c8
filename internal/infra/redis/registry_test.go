package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
)

func TestSessionRegistryReservesPINs(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := NewSessionRegistry(client, time.Minute)

	if !registry.Put("1234", app.NewSession("1234")) {
		t.Fatalf("expected Put to succeed")
	}
	if !mr.Exists("session:pin:1234") {
		t.Fatalf("expected redis reservation for the PIN")
	}

	// Another instance sharing the same redis must see the PIN as taken.
	other := NewSessionRegistry(client, time.Minute)
	if other.Put("1234", app.NewSession("1234")) {
		t.Fatalf("expected cross-instance collision to be refused")
	}

	registry.Remove("1234")
	if mr.Exists("session:pin:1234") {
		t.Fatalf("expected reservation released")
	}
}

func TestSessionRegistrySweepReleasesReservations(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := NewSessionRegistry(client, time.Minute)
	registry.Put("1234", app.NewSession("1234"))

	future := time.Now().Add(2 * time.Hour)
	if removed := registry.Sweep(future, time.Hour, 5*time.Minute); removed != 1 {
		t.Fatalf("expected one session swept, got %d", removed)
	}
	if mr.Exists("session:pin:1234") {
		t.Fatalf("expected reservation released by sweep")
	}
}
