package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/services-client/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/services-client/internal/slowcontrol"
)

// remote sends a slow-control request the way a peer would and returns the
// reply published on its reply_to topic.
func remote(t *testing.T, bus *mqtttest.Bus, req SlowControlRequest) SlowControlResponse {
	t.Helper()
	req.ReplyTo = "services/reply/operator/" + req.RequestID

	var (
		mu   sync.Mutex
		resp SlowControlResponse
		got  bool
	)
	if err := bus.Subscribe(req.ReplyTo, 1, func(_ string, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = true
		return json.Unmarshal(payload, &resp)
	}); err != nil {
		t.Fatalf("subscribing to reply: %v", err)
	}
	defer bus.Unsubscribe(req.ReplyTo) //nolint:errcheck // Test cleanup

	data, _ := json.Marshal(req)
	if err := bus.Publish(testTopics.SlowControl("pump-ctl"), data, 1, false); err != nil {
		t.Fatalf("publishing request: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !got {
		t.Fatalf("no reply to %s request", req.Command)
	}
	return resp
}

func TestSlowControl_RemoteGetSetList(t *testing.T) {
	bus := mqtttest.New()
	mirror := &fakeMirror{}
	var events []SlowControlChange
	s := newInitialised(t, bus, testConfig(),
		WithMirror(mirror),
		WithEventSink(func(channel string, payload any) {
			if channel == EventSlowControlChanged {
				events = append(events, payload.(SlowControlChange))
			}
		}),
	)

	if err := s.AddSlowControlVariable("setpoint", slowcontrol.TypeNumber, nil, nil); err != nil {
		t.Fatalf("AddSlowControlVariable() error = %v", err)
	}
	if err := s.AddSlowControlVariable("mode", slowcontrol.TypeString, nil, nil); err != nil {
		t.Fatalf("AddSlowControlVariable() error = %v", err)
	}

	resp := remote(t, bus, SlowControlRequest{RequestID: "r1", Command: CommandSet, Name: "setpoint", Value: "42.5"})
	if !resp.Success || resp.Value != "42.5" || resp.RequestID != "r1" {
		t.Fatalf("set reply = %+v", resp)
	}
	v, err := SlowControlValue[float64](s, "setpoint")
	if err != nil || v != 42.5 {
		t.Errorf("SlowControlValue() = %v, %v", v, err)
	}
	if len(events) != 1 || events[0].Name != "setpoint" || events[0].Value != "42.5" {
		t.Errorf("change events = %+v", events)
	}
	if len(mirror.changes) != 1 || mirror.changes[0] != "pump-ctl.setpoint=42.5" {
		t.Errorf("mirrored changes = %v", mirror.changes)
	}

	resp = remote(t, bus, SlowControlRequest{RequestID: "r2", Command: CommandGet, Name: "setpoint"})
	if !resp.Success || resp.Value != "42.5" {
		t.Errorf("get reply = %+v", resp)
	}

	resp = remote(t, bus, SlowControlRequest{RequestID: "r3", Command: CommandList})
	if !resp.Success || len(resp.Variables) != 2 || resp.Variables[0].Name != "mode" {
		t.Errorf("list reply = %+v", resp)
	}
}

func TestSlowControl_RemoteErrors(t *testing.T) {
	bus := mqtttest.New()
	s := newInitialised(t, bus, testConfig())
	if err := s.AddSlowControlVariable("setpoint", slowcontrol.TypeNumber, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSlowControlVariable("firmware", slowcontrol.TypeInfo, nil, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  SlowControlRequest
		want string
	}{
		{"unknown variable", SlowControlRequest{Command: CommandGet, Name: "missing"}, "not found"},
		{"bad number", SlowControlRequest{Command: CommandSet, Name: "setpoint", Value: "fast"}, "not a number"},
		{"read-only", SlowControlRequest{Command: CommandSet, Name: "firmware", Value: "2.0"}, "read-only"},
		{"unknown command", SlowControlRequest{Command: "reboot"}, "unknown command"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.RequestID = strconv.Itoa(i)
			resp := remote(t, bus, tt.req)
			if resp.Success {
				t.Fatalf("reply Success = true")
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Errorf("reply error = %q, want it to contain %q", resp.Error, tt.want)
			}
		})
	}
}

func TestSlowControl_Hooks(t *testing.T) {
	bus := mqtttest.New()
	s := newInitialised(t, bus, testConfig())

	clamp := func(raw string) (string, error) {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", err
		}
		if f < 0 {
			return "", errors.New("negative flow")
		}
		return fmt.Sprint(min(f, 100)), nil
	}
	readout := func(current string) (string, error) { return current + " l/min", nil }
	if err := s.AddSlowControlVariable("flow", slowcontrol.TypeNumber, clamp, readout); err != nil {
		t.Fatal(err)
	}

	resp := remote(t, bus, SlowControlRequest{RequestID: "a", Command: CommandSet, Name: "flow", Value: "250"})
	if !resp.Success || resp.Value != "100" {
		t.Errorf("set reply = %+v", resp)
	}
	resp = remote(t, bus, SlowControlRequest{RequestID: "b", Command: CommandSet, Name: "flow", Value: "-1"})
	if resp.Success || !strings.Contains(resp.Error, "negative flow") {
		t.Errorf("vetoed set reply = %+v", resp)
	}
	resp = remote(t, bus, SlowControlRequest{RequestID: "c", Command: CommandGet, Name: "flow"})
	if resp.Value != "100 l/min" {
		t.Errorf("get reply value = %q", resp.Value)
	}
}

func TestSlowControl_LocalManagement(t *testing.T) {
	s := New(testConfig(), mqtttest.New(), nil)

	if err := s.AddSlowControlVariable("armed", slowcontrol.TypeBool, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSlowControlVariable("armed", slowcontrol.TypeBool, nil, nil); !errors.Is(err, slowcontrol.ErrVariableExists) {
		t.Errorf("duplicate AddSlowControlVariable() error = %v", err)
	}
	if err := s.SlowControl().Set("armed", true); err != nil {
		t.Fatal(err)
	}
	if v, err := s.SlowControlVariable("armed"); err != nil || v.String() != "true" {
		t.Errorf("SlowControlVariable() = %v, %v", v, err)
	}
	if got := s.PrintSlowControlVariables(); got != "armed (bool) = true\n" {
		t.Errorf("PrintSlowControlVariables() = %q", got)
	}
	if _, err := SlowControlValue[string](s, "armed"); !errors.Is(err, slowcontrol.ErrTypeMismatch) {
		t.Errorf("SlowControlValue[string]() error = %v", err)
	}

	if err := s.RemoveSlowControlVariable("armed"); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveSlowControlVariable("armed"); !errors.Is(err, slowcontrol.ErrVariableNotFound) {
		t.Errorf("second RemoveSlowControlVariable() error = %v", err)
	}

	_ = s.AddSlowControlVariable("a", slowcontrol.TypeString, nil, nil)
	_ = s.AddSlowControlVariable("b", slowcontrol.TypeString, nil, nil)
	s.ClearSlowControlVariables()
	if n := s.SlowControl().Len(); n != 0 {
		t.Errorf("Len() after Clear = %d", n)
	}
}

func TestRemoteSlowControl(t *testing.T) {
	bus := mqtttest.New()
	target := newInitialised(t, bus, testConfig())
	if err := target.AddSlowControlVariable("setpoint", slowcontrol.TypeNumber, nil, nil); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Name = "operator"
	ctl := newInitialised(t, bus, cfg)
	ctx := context.Background()

	resp, err := ctl.RemoteSlowControl(ctx, "pump-ctl", SlowControlRequest{Command: CommandSet, Name: "setpoint", Value: "3"})
	if err != nil || resp.Value != "3" {
		t.Fatalf("RemoteSlowControl(set) = %+v, %v", resp, err)
	}
	if v, _ := SlowControlValue[float64](target, "setpoint"); v != 3 {
		t.Errorf("target value = %v, want 3", v)
	}

	resp, err = ctl.RemoteSlowControl(ctx, "pump-ctl", SlowControlRequest{Command: CommandList})
	if err != nil || len(resp.Variables) != 1 {
		t.Errorf("RemoteSlowControl(list) = %+v, %v", resp, err)
	}

	_, err = ctl.RemoteSlowControl(ctx, "pump-ctl", SlowControlRequest{Command: CommandGet, Name: "missing"})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("RemoteSlowControl(missing) error = %v, want ErrRejected", err)
	}

	_, err = ctl.RemoteSlowControl(ctx, "nobody", SlowControlRequest{Command: CommandList}, WithTimeout(80*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("RemoteSlowControl(nobody) error = %v, want ErrTimeout", err)
	}

	if bus.SubscriptionCount() != 4 {
		t.Errorf("SubscriptionCount() = %d; reply subscriptions leaked", bus.SubscriptionCount())
	}
}

func TestRemoteSlowControl_RetriesKeepRequestID(t *testing.T) {
	bus := mqtttest.New()
	cfg := testConfig()
	cfg.Name = "operator"
	ctl := newInitialised(t, bus, cfg)

	// A peer that ignores the first delivery and answers the second.
	var (
		mu   sync.Mutex
		seen []SlowControlRequest
	)
	err := bus.Subscribe(testTopics.SlowControl("flaky"), 1, func(_ string, payload []byte) error {
		var req SlowControlRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, req)
		n := len(seen)
		mu.Unlock()
		if n < 2 {
			return nil
		}
		data, _ := json.Marshal(SlowControlResponse{RequestID: req.RequestID, Success: true, Name: req.Name, Value: req.Value})
		return bus.Publish(req.ReplyTo, data, 1, false)
	})
	if err != nil {
		t.Fatal(err)
	}
	before := bus.SubscriptionCount()

	resp, err := ctl.RemoteSlowControl(context.Background(), "flaky",
		SlowControlRequest{Command: CommandSet, Name: "gain", Value: "2"}, WithTimeout(400*time.Millisecond))
	if err != nil || resp.Value != "2" {
		t.Fatalf("RemoteSlowControl() = %+v, %v", resp, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("peer saw %d deliveries, want 2", len(seen))
	}
	if seen[0].RequestID == "" || seen[0].RequestID != seen[1].RequestID || seen[0].ReplyTo != seen[1].ReplyTo {
		t.Errorf("attempts differ: %+v vs %+v", seen[0], seen[1])
	}
	if got := bus.SubscriptionCount(); got != before {
		t.Errorf("SubscriptionCount() = %d, want %d; reply subscription leaked", got, before)
	}
}

func TestSlowControl_RepeatedSetAppliedOnce(t *testing.T) {
	bus := mqtttest.New()
	s := newInitialised(t, bus, testConfig())

	var pulses int
	err := s.AddSlowControlVariable("pulse", slowcontrol.TypeNumber, func(raw string) (string, error) {
		pulses++
		return strconv.Itoa(pulses), nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	first := remote(t, bus, SlowControlRequest{RequestID: "dup-1", Command: CommandSet, Name: "pulse", Value: "1"})
	again := remote(t, bus, SlowControlRequest{RequestID: "dup-1", Command: CommandSet, Name: "pulse", Value: "1"})
	if pulses != 1 {
		t.Errorf("change hook ran %d times for one request ID, want 1", pulses)
	}
	if !first.Success || again.Value != first.Value {
		t.Errorf("replies = %+v then %+v, want the same answer", first, again)
	}

	remote(t, bus, SlowControlRequest{RequestID: "dup-2", Command: CommandSet, Name: "pulse", Value: "1"})
	if pulses != 2 {
		t.Errorf("change hook ran %d times after a new request ID, want 2", pulses)
	}
}

func TestReplyCache_Evicts(t *testing.T) {
	var c replyCache
	applied := 0
	apply := func() SlowControlResponse {
		applied++
		return SlowControlResponse{Success: true}
	}

	for i := range replyCacheSize + 1 {
		c.once(fmt.Sprintf("r%d", i), apply)
	}
	c.once(fmt.Sprintf("r%d", replyCacheSize), apply)
	if applied != replyCacheSize+1 {
		t.Errorf("applied = %d, want %d; recent ID re-applied", applied, replyCacheSize+1)
	}
	c.once("r0", apply)
	if applied != replyCacheSize+2 {
		t.Errorf("applied = %d, want %d; evicted ID not re-applied", applied, replyCacheSize+2)
	}
}
