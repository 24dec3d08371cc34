package broker

import (
	"net"
	"sync/atomic"
	"testing"
	"time"
)

type countingResyncer struct{ n int32 }

func (r *countingResyncer) Resync() { atomic.AddInt32(&r.n, 1) }

func TestReconnectingClientResyncsOnEveryConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	resyncer := &countingResyncer{}
	rc := NewReconnectingClient(func() (net.Conn, error) {
		return net.Dial("tcp", ln.Addr().String())
	}, &recordingSink{}, nil, nil, resyncer)

	go rc.Run()
	defer rc.Stop()

	first := <-accepted
	waitFor(t, func() bool { return atomic.LoadInt32(&resyncer.n) == 1 })

	first.Close() // force the client to notice the drop and redial

	second := <-accepted
	defer second.Close()
	waitFor(t, func() bool { return atomic.LoadInt32(&resyncer.n) == 2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		case <-time.After(time.Millisecond):
		}
	}
}
