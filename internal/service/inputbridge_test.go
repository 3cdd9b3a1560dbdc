package service_test

import (
	"testing"
	"time"

	"github.com/haldis/agentrelay/internal/service"
)

func TestInputBridgeDeliverWithoutWaiter(t *testing.T) {
	b := service.NewInputBridge()

	if b.Deliver("hello") {
		t.Error("Deliver with no waiter must report false")
	}
	if b.Waiting() {
		t.Error("bridge must not report waiting")
	}
}

func TestInputBridgeRoundTrip(t *testing.T) {
	b := service.NewInputBridge()

	got := make(chan string, 1)
	go func() {
		got <- b.Await(2 * time.Second)
	}()

	deadline := time.Now().Add(time.Second)
	for !b.Waiting() {
		if time.Now().After(deadline) {
			t.Fatal("Await never registered as waiting")
		}
		time.Sleep(time.Millisecond)
	}

	if !b.Deliver("next instruction") {
		t.Fatal("Deliver returned false with an active waiter")
	}

	if v := <-got; v != "next instruction" {
		t.Errorf("Await returned %q, want %q", v, "next instruction")
	}
	if b.Waiting() {
		t.Error("bridge still waiting after delivery")
	}
}

func TestInputBridgeTimeoutYieldsStopSentinel(t *testing.T) {
	b := service.NewInputBridge()

	if got := b.Await(10 * time.Millisecond); got != service.StopSentinel {
		t.Errorf("Await timeout returned %q, want %q", got, service.StopSentinel)
	}
}

func TestInputBridgeSecondDeliveryDropped(t *testing.T) {
	b := service.NewInputBridge()

	got := make(chan string, 1)
	go func() {
		got <- b.Await(2 * time.Second)
	}()

	deadline := time.Now().Add(time.Second)
	for !b.Waiting() {
		if time.Now().After(deadline) {
			t.Fatal("Await never registered as waiting")
		}
		time.Sleep(time.Millisecond)
	}

	b.Deliver("first")
	<-got

	if b.Deliver("second") {
		t.Error("Deliver after the wait ended must report false")
	}
}
