package redisbus

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pulsecam/internal/bus"
)

func startServer(t *testing.T) (*miniredis.Miniredis, string, int) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return srv, srv.Host(), port
}

func TestConnectAndPublish(t *testing.T) {
	srv, host, port := startServer(t)
	b := New(Options{Host: host, Port: port}, nil)
	defer b.Disconnect()

	res := <-b.Connect(context.Background())
	if res.Err != nil || res.Status != bus.StatusAccepted {
		t.Fatalf("unexpected connect result %+v", res)
	}

	sub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(context.Background(), "image/latest")
	defer ps.Close()
	if _, err := ps.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "image/latest", []byte(`{"type":"data"}`), bus.QoS(1)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-ps.Channel():
		if msg.Payload != `{"type":"data"}` {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestConnectRejectsBadPassword(t *testing.T) {
	srv, host, port := startServer(t)
	srv.RequireAuth("secret")

	b := New(Options{Host: host, Port: port, Password: "wrong"}, nil)
	defer b.Disconnect()
	if res := <-b.Connect(context.Background()); res.Err == nil {
		t.Fatalf("expected auth failure, got %+v", res)
	}

	good := New(Options{Host: host, Port: port, Password: "secret"}, nil)
	defer good.Disconnect()
	if res := <-good.Connect(context.Background()); res.Err != nil {
		t.Fatalf("expected success with correct password, got %v", res.Err)
	}
}

func TestPublishAfterServerStops(t *testing.T) {
	srv, host, port := startServer(t)
	b := New(Options{Host: host, Port: port, ConnectTimeout: 200 * time.Millisecond}, nil)
	defer b.Disconnect()
	if res := <-b.Connect(context.Background()); res.Err != nil {
		t.Fatalf("connect: %v", res.Err)
	}
	srv.Close()
	if err := b.Publish(context.Background(), "image/latest", []byte("x"), 0); err == nil {
		t.Fatal("expected publish error after server stopped")
	}
}
