package backend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
	"github.com/nerrad567/services-client/internal/infrastructure/mqtt/mqtttest"
)

var testTopics = mqtt.NewTopics("services")

// respond installs a fake middleman that answers every request with fn's result.
func respond(t *testing.T, bus *mqtttest.Bus, fn func(Request) Response) {
	t.Helper()
	err := bus.Subscribe(testTopics.AllRequests(), 1, func(_ string, payload []byte) error {
		req, err := DecodeRequest(payload)
		if err != nil {
			return err
		}
		if req.ReplyTo == "" {
			return nil
		}
		resp := fn(req)
		resp.RequestID = req.RequestID
		data, _ := json.Marshal(resp)
		return bus.Publish(req.ReplyTo, data, 1, false)
	})
	if err != nil {
		t.Fatalf("installing responder: %v", err)
	}
}

func newTestClient(bus *mqtttest.Bus, attempt time.Duration) *Client {
	return New(bus, Options{
		ClientID:       "pump-ctl",
		Topics:         testTopics,
		AttemptTimeout: attempt,
	})
}

func TestExchange_Roundtrip(t *testing.T) {
	bus := mqtttest.New()
	var seen Request
	respond(t, bus, func(req Request) Response {
		seen = req
		return Response{Success: true, Rows: []string{"a", "b"}}
	})

	c := newTestClient(bus, time.Second)
	resp, ok := c.Exchange(context.Background(), Request{Kind: KindSQLQuery, Database: "daq", Payload: "SELECT 1"})
	if !ok {
		t.Fatal("Exchange() ok = false")
	}
	if !resp.Success || len(resp.Rows) != 2 {
		t.Errorf("Exchange() = %+v", resp)
	}
	if seen.Source != "pump-ctl" || seen.Timestamp == 0 || seen.RequestID == "" {
		t.Errorf("request not stamped: %+v", seen)
	}
	if seen.ReplyTo != testTopics.Reply("pump-ctl", seen.RequestID) {
		t.Errorf("ReplyTo = %q", seen.ReplyTo)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d after exchange", c.Pending())
	}
}

func TestExchange_FreshRequestIDPerAttempt(t *testing.T) {
	bus := mqtttest.New()
	ids := map[string]bool{}
	respond(t, bus, func(req Request) Response {
		ids[req.RequestID] = true
		return Response{Success: true}
	})

	c := newTestClient(bus, time.Second)
	req := Request{Kind: KindReady}
	c.Exchange(context.Background(), req)
	c.Exchange(context.Background(), req)
	if len(ids) != 2 {
		t.Errorf("saw %d request ids, want 2", len(ids))
	}
}

func TestExchange_RejectionIsAReply(t *testing.T) {
	bus := mqtttest.New()
	respond(t, bus, func(Request) Response {
		return Response{Success: false, Error: "no such table"}
	})

	resp, ok := newTestClient(bus, time.Second).Exchange(context.Background(), Request{Kind: KindSQLQuery})
	if !ok {
		t.Fatal("Exchange() ok = false for a rejection")
	}
	if resp.Success || resp.Error != "no such table" {
		t.Errorf("Exchange() = %+v", resp)
	}
}

func TestExchange_NoReply(t *testing.T) {
	c := newTestClient(mqtttest.New(), 30*time.Millisecond)

	start := time.Now()
	_, ok := c.Exchange(context.Background(), Request{Kind: KindAlarm})
	if ok {
		t.Fatal("Exchange() ok = true with no responder")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("elapsed = %v, want ~30ms", elapsed)
	}
}

func TestExchange_DeadlineCapsWait(t *testing.T) {
	c := newTestClient(mqtttest.New(), 5*time.Second)

	start := time.Now()
	_, ok := c.Exchange(context.Background(), Request{Kind: KindAlarm, Deadline: time.Now().Add(20 * time.Millisecond)})
	if ok {
		t.Fatal("Exchange() ok = true")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, deadline did not cap the wait", elapsed)
	}

	_, ok = c.Exchange(context.Background(), Request{Kind: KindAlarm, Deadline: time.Now().Add(-time.Second)})
	if ok {
		t.Error("Exchange() with a past deadline ok = true")
	}
}

func TestExchange_ContextCancel(t *testing.T) {
	c := newTestClient(mqtttest.New(), 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := c.Exchange(ctx, Request{Kind: KindReady}); ok {
		t.Fatal("Exchange() ok = true")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, context did not end the wait", elapsed)
	}
}

func TestExchange_Disconnected(t *testing.T) {
	bus := mqtttest.New()
	bus.SetConnected(false)

	if _, ok := newTestClient(bus, time.Second).Exchange(context.Background(), Request{Kind: KindReady}); ok {
		t.Error("Exchange() ok = true on a disconnected transport")
	}
}

func TestHandleReply_Unmatched(t *testing.T) {
	c := newTestClient(mqtttest.New(), time.Second)
	if err := c.handleReply(testTopics.Reply("pump-ctl", "stale"), []byte(`{"success":true}`)); err != nil {
		t.Errorf("handleReply() error = %v", err)
	}
	if err := c.handleReply(testTopics.Reply("pump-ctl", "x"), []byte(`{`)); err == nil {
		t.Error("handleReply() accepted malformed JSON")
	}
}

func TestSend(t *testing.T) {
	bus := mqtttest.New()
	c := newTestClient(bus, time.Second)

	if err := c.Send(Request{Kind: KindLog, Payload: "started", Severity: Int(2)}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msgs := bus.PublishedTo(testTopics.Request("log"))
	if len(msgs) != 1 {
		t.Fatalf("published %d log requests, want 1", len(msgs))
	}
	req, _ := DecodeRequest(msgs[0].Payload)
	if req.ReplyTo != "" || req.Payload != "started" || req.Severity == nil || *req.Severity != 2 {
		t.Errorf("sent request = %+v", req)
	}

	if err := c.Send(Request{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Send(no kind) error = %v, want ErrInvalidRequest", err)
	}

	bus.SetConnected(false)
	if err := c.Send(Request{Kind: KindLog}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestStartIdempotentAndClose(t *testing.T) {
	bus := mqtttest.New()
	c := newTestClient(bus, time.Second)

	for range 3 {
		if err := c.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() after Close = %d", bus.SubscriptionCount())
	}
}

func TestResponse_VersionOr(t *testing.T) {
	if v := (Response{}).VersionOr(-1); v != -1 {
		t.Errorf("VersionOr() = %d, want -1", v)
	}
	if v := (Response{Version: Int(4)}).VersionOr(-1); v != 4 {
		t.Errorf("VersionOr() = %d, want 4", v)
	}
}
