package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
	"github.com/nerrad567/services-client/internal/retry"
	"github.com/nerrad567/services-client/internal/slowcontrol"
)

// Slow-control commands accepted on the request topic.
const (
	CommandGet  = "get"
	CommandSet  = "set"
	CommandList = "list"
)

// SlowControlRequest is a remote request to read, change or list
// variables.
type SlowControlRequest struct {
	RequestID string `json:"request_id"`
	Command   string `json:"command"`
	Name      string `json:"name,omitempty"`
	Value     string `json:"value,omitempty"`
	ReplyTo   string `json:"reply_to"`
}

// SlowControlResponse answers a SlowControlRequest.
type SlowControlResponse struct {
	RequestID string             `json:"request_id"`
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
	Name      string             `json:"name,omitempty"`
	Value     string             `json:"value,omitempty"`
	Variables []slowcontrol.Info `json:"variables,omitempty"`
}

// SlowControlChange is the event emitted after a committed change.
type SlowControlChange struct {
	Service string `json:"service"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// SlowControl returns the variable registry.
func (s *Services) SlowControl() *slowcontrol.Registry {
	return s.vars
}

// SlowControlVariable returns a registered variable.
func (s *Services) SlowControlVariable(name string) (*slowcontrol.Variable, error) {
	return s.vars.Get(name)
}

// AddSlowControlVariable registers a variable. Either hook may be nil.
// A service that announces itself re-announces with the new list.
func (s *Services) AddSlowControlVariable(name string, typ slowcontrol.Type, change, read slowcontrol.Hook) error {
	if err := s.vars.Register(name, typ, change, read); err != nil {
		return err
	}
	s.reannounce()
	return nil
}

// RemoveSlowControlVariable unregisters a variable.
func (s *Services) RemoveSlowControlVariable(name string) error {
	if err := s.vars.Remove(name); err != nil {
		return err
	}
	s.reannounce()
	return nil
}

// ClearSlowControlVariables unregisters every variable.
func (s *Services) ClearSlowControlVariables() {
	s.vars.Clear()
	s.reannounce()
}

// PrintSlowControlVariables returns a listing of every variable and its
// stored value, one per line.
func (s *Services) PrintSlowControlVariables() string {
	return s.vars.Describe()
}

// SlowControlValue returns a variable's stored value as T.
func SlowControlValue[T any](s *Services, name string) (T, error) {
	return slowcontrol.Value[T](s.vars, name)
}

func (s *Services) reannounce() {
	if s.cfg.NewService && s.isInitialized() && s.transport.IsConnected() {
		s.announce()
	}
}

// handleSlowControl answers a remote slow-control request on its reply_to
// topic. Requests without a reply topic are applied and not answered.
func (s *Services) handleSlowControl(topic string, payload []byte) error {
	var req SlowControlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding slow-control request: %w", err)
	}

	var resp SlowControlResponse
	if req.Command == CommandSet && req.RequestID != "" {
		resp = s.setReplies.once(req.RequestID, func() SlowControlResponse { return s.applySlowControl(req) })
	} else {
		resp = s.applySlowControl(req)
	}
	if req.ReplyTo == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding slow-control response: %w", err)
	}
	if err := s.transport.Publish(req.ReplyTo, data, 1, false); err != nil {
		return fmt.Errorf("replying to slow-control request: %w", err)
	}
	return nil
}

func (s *Services) applySlowControl(req SlowControlRequest) SlowControlResponse {
	resp := SlowControlResponse{RequestID: req.RequestID, Name: req.Name}

	var err error
	switch req.Command {
	case CommandGet:
		resp.Value, err = s.vars.Read(req.Name)
	case CommandSet:
		resp.Value, err = s.vars.Change(req.Name, req.Value)
	case CommandList:
		resp.Variables = s.vars.Snapshot()
	default:
		err = fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, req.Command)
	}

	if err != nil {
		resp.Error = err.Error()
		level := s.logger.Debug
		if errors.Is(err, slowcontrol.ErrChangeRejected) {
			level = s.logger.Info
		}
		level("slow-control request failed", "command", req.Command, "name", req.Name, "error", err)
		return resp
	}
	resp.Success = true
	return resp
}

// changed observes every committed variable change.
func (s *Services) changed(name, value string) {
	s.metrics.SlowControlChanged(name)
	if s.mirror != nil {
		s.mirror.WriteSlowControlChange(s.cfg.Name, name, value)
	}
	s.emit(EventSlowControlChanged, SlowControlChange{
		Service: s.cfg.Name,
		Name:    name,
		Value:   value,
	})
	s.logger.Info("slow-control variable changed", "name", name, "value", value)
}

// RemoteSlowControl sends a slow-control request to another service and
// waits for its answer, retrying until the call timeout. Every attempt
// carries the same request ID and reply topic, so a late answer to an
// earlier attempt still completes the call and the target applies a set
// only once. A request the service answers with an error fails with
// ErrRejected.
func (s *Services) RemoteSlowControl(ctx context.Context, service string, req SlowControlRequest, opts ...CallOption) (SlowControlResponse, error) {
	if !mqtt.ValidLevel(service) {
		return SlowControlResponse{}, fmt.Errorf("%w: service name %q", ErrInvalidArgument, service)
	}
	if !s.isInitialized() {
		return SlowControlResponse{}, ErrNotReady
	}
	o := s.resolve(opts)

	req.RequestID = uuid.NewString()
	req.ReplyTo = s.topics.SlowControlReply(s.clientID, req.RequestID)
	data, err := json.Marshal(req)
	if err != nil {
		return SlowControlResponse{}, fmt.Errorf("encoding slow-control request: %w", err)
	}

	ch := make(chan SlowControlResponse, 1)
	onReply := func(_ string, payload []byte) error {
		var resp SlowControlResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return fmt.Errorf("decoding slow-control response: %w", err)
		}
		if resp.RequestID != req.RequestID {
			return nil
		}
		select {
		case ch <- resp:
		default:
		}
		return nil
	}

	subscribed := false
	defer func() {
		if subscribed {
			s.transport.Unsubscribe(req.ReplyTo) //nolint:errcheck // Reply topic is single-use
		}
	}()

	attempt := func() (SlowControlResponse, bool) {
		if !s.transport.IsConnected() {
			return SlowControlResponse{}, false
		}
		if !subscribed {
			if err := s.transport.Subscribe(req.ReplyTo, 1, onReply); err != nil {
				s.logger.Debug("slow-control reply subscribe failed", "error", err)
				return SlowControlResponse{}, false
			}
			subscribed = true
		}
		if err := s.transport.Publish(s.topics.SlowControl(service), data, 1, false); err != nil {
			s.logger.Debug("slow-control request publish failed", "service", service, "error", err)
			return SlowControlResponse{}, false
		}
		return awaitReply(ctx, ch, s.cfg.AttemptTimeout())
	}

	resp, ok := retry.CallForDuration(ctx, o.timeout, attempt)
	switch {
	case !ok:
		return SlowControlResponse{}, fmt.Errorf("%w: slow-control %s on %s after %v", ErrTimeout, req.Command, service, o.timeout)
	case !resp.Success:
		return resp, fmt.Errorf("%w: slow-control %s on %s: %s", ErrRejected, req.Command, service, resp.Error)
	}
	return resp, nil
}

func awaitReply(ctx context.Context, ch <-chan SlowControlResponse, wait time.Duration) (SlowControlResponse, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, true
	case <-timer.C:
		return SlowControlResponse{}, false
	case <-ctx.Done():
		return SlowControlResponse{}, false
	}
}

// replyCacheSize bounds how many set answers are remembered.
const replyCacheSize = 128

// replyCache answers a repeated request ID with the first answer. The zero
// value is ready to use.
type replyCache struct {
	mu    sync.Mutex
	byID  map[string]SlowControlResponse
	order []string
}

// once returns the remembered answer for id, or runs apply and remembers
// its answer. Calls are serialised so duplicates delivered concurrently
// still apply once.
func (c *replyCache) once(id string, apply func() SlowControlResponse) SlowControlResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	if resp, ok := c.byID[id]; ok {
		return resp
	}
	if c.byID == nil {
		c.byID = make(map[string]SlowControlResponse, replyCacheSize)
	}

	resp := apply()
	if len(c.order) == replyCacheSize {
		delete(c.byID, c.order[0])
		c.order = c.order[1:]
	}
	c.byID[id] = resp
	c.order = append(c.order, id)
	return resp
}
