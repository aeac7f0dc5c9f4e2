package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func TestSerialMux_SubscribeUnique(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == "" || id2 == "" {
		t.Fatal("empty subscription id")
	}
	if id1 == id2 {
		t.Error("subscription ids should be unique")
	}
	if ch1 == nil || ch2 == nil {
		t.Fatal("nil channel")
	}
	if len(mux.subscribers) != 2 {
		t.Errorf("expected 2 subscribers, got %d", len(mux.subscribers))
	}
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	// unknown ids are ignored
	mux.Unsubscribe(id)
	mux.Unsubscribe("nope")
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand("INIT"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := mux.SendCommand("HB\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "INIT\nHB\n" {
		t.Errorf("written = %q", got)
	}
}

func TestSerialMux_SendCommandErrors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	boom := errors.New("boom")
	port.WriteError = boom
	if err := mux.SendCommand("INIT"); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	port.ShortWrite = true
	if err := mux.SendCommand("INIT"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}
}

func TestSerialMux_Initialise(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	if err := mux.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	if got := string(port.GetWrittenData()); got != InitCommand+"\n" {
		t.Errorf("written = %q", got)
	}

	port.WriteError = errors.New("unplugged")
	if err := mux.Initialise(); err == nil {
		t.Error("expected error")
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddReadData([]byte("READY\r\n\n1,100.5\n"))

	for _, ch := range []chan string{a, b} {
		if got := receive(t, ch); got != "READY" {
			t.Errorf("first line = %q, want READY", got)
		}
		if got := receive(t, ch); got != "1,100.5" {
			t.Errorf("second line = %q, want 1,100.5", got)
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	boom := errors.New("cable pulled")
	port.FailRead(boom)

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Monitor returned %v, want %v", err, boom)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
}

func TestSerialMux_SlowSubscriberDoesNotBlock(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	mux.buffer = 1
	_, slow := mux.Subscribe()
	_, fast := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	port.AddReadData([]byte("HB\n"))
	receive(t, fast)
	port.AddReadData([]byte("READY\n"))
	if got := receive(t, fast); got != "READY" {
		t.Errorf("fast subscriber got %q", got)
	}
	if got := receive(t, slow); got != "HB" {
		t.Errorf("slow subscriber got %q, want the line that fit its buffer", got)
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}
}
