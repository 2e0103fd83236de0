package events

import (
	"net"
	"testing"
)

func TestRedisPublisherFailsWithoutServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	publisher, err := NewRedisPublisher(RedisConfig{Addr: addr, Channel: "autotrader:events"})
	if err == nil {
		publisher.Close()
		t.Fatalf("expected ping error for %s", addr)
	}
}
