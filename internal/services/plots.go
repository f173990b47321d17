package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/services-client/internal/backend"
)

// ROOTPlot is a serialised ROOT object stored by the middleman.
type ROOTPlot struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	DrawOptions string `json:"draw_options"`
	JSON        string `json:"json"`
	Timestamp   string `json:"timestamp"`
}

// Plot is a simple x/y series with labels.
type Plot struct {
	Name   string            `json:"name"`
	Title  string            `json:"title,omitempty"`
	XLabel string            `json:"xlabel,omitempty"`
	YLabel string            `json:"ylabel,omitempty"`
	X      []float32         `json:"x"`
	Y      []float32         `json:"y"`
	Info   map[string]string `json:"info,omitempty"`
}

// SendROOTPlot stores a ROOT object under name and returns its version.
// Temporary plots are overwritten by the next upload of the same name;
// persistent plots are kept as a new version.
func (s *Services) SendROOTPlot(ctx context.Context, name, drawOptions, jsonData string, persistent bool, opts ...CallOption) (int, error) {
	if name == "" {
		return backend.LatestVersion, fmt.Errorf("%w: plot name is required", ErrInvalidArgument)
	}
	if err := requireJSON(jsonData); err != nil {
		return backend.LatestVersion, err
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:        backend.KindROOTPlotSend,
		Device:      o.device,
		Name:        name,
		Timestamp:   o.timestamp.UnixMilli(),
		Payload:     jsonData,
		DrawOptions: drawOptions,
		Persistent:  persistent,
	}, o.timeout)
	if err != nil {
		return backend.LatestVersion, err
	}
	return resp.VersionOr(backend.LatestVersion), nil
}

// SendTemporaryROOTPlot is SendROOTPlot with persistent=false.
func (s *Services) SendTemporaryROOTPlot(ctx context.Context, name, drawOptions, jsonData string, opts ...CallOption) (int, error) {
	return s.SendROOTPlot(ctx, name, drawOptions, jsonData, false, opts...)
}

// SendPersistentROOTPlot is SendROOTPlot with persistent=true.
func (s *Services) SendPersistentROOTPlot(ctx context.Context, name, drawOptions, jsonData string, opts ...CallOption) (int, error) {
	return s.SendROOTPlot(ctx, name, drawOptions, jsonData, true, opts...)
}

// GetROOTPlot fetches a stored ROOT object; WithVersion selects an older
// persistent version.
func (s *Services) GetROOTPlot(ctx context.Context, name string, opts ...CallOption) (ROOTPlot, error) {
	if name == "" {
		return ROOTPlot{}, fmt.Errorf("%w: plot name is required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:      backend.KindROOTPlotGet,
		Device:    o.device,
		Name:      name,
		Timestamp: o.timestamp.UnixMilli(),
		Version:   backend.Int(o.version),
	}, o.timeout)
	if err != nil {
		return ROOTPlot{}, err
	}
	return ROOTPlot{
		Name:        name,
		Version:     resp.VersionOr(o.version),
		DrawOptions: resp.DrawOptions,
		JSON:        resp.Payload,
		Timestamp:   resp.Timestamp,
	}, nil
}

// SendPlot stores a plot. X and Y must be the same length.
func (s *Services) SendPlot(ctx context.Context, plot *Plot, opts ...CallOption) error {
	if plot == nil || plot.Name == "" {
		return fmt.Errorf("%w: plot name is required", ErrInvalidArgument)
	}
	if len(plot.X) != len(plot.Y) {
		return fmt.Errorf("%w: plot %s has %d x values and %d y values",
			ErrInvalidArgument, plot.Name, len(plot.X), len(plot.Y))
	}
	data, err := json.Marshal(plot)
	if err != nil {
		return fmt.Errorf("encoding plot: %w", err)
	}
	o := s.resolve(opts)
	_, err = s.call(ctx, backend.Request{
		Kind:      backend.KindPlotSend,
		Device:    o.device,
		Name:      plot.Name,
		Timestamp: o.timestamp.UnixMilli(),
		Payload:   string(data),
	}, o.timeout)
	return err
}

// GetPlot fetches a stored plot.
func (s *Services) GetPlot(ctx context.Context, name string, opts ...CallOption) (*Plot, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: plot name is required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:      backend.KindPlotGet,
		Device:    o.device,
		Name:      name,
		Timestamp: o.timestamp.UnixMilli(),
	}, o.timeout)
	if err != nil {
		return nil, err
	}

	var plot Plot
	if err := json.Unmarshal([]byte(resp.Payload), &plot); err != nil {
		return nil, fmt.Errorf("decoding plot %s: %w", name, err)
	}
	if plot.Name == "" {
		plot.Name = name
	}
	return &plot, nil
}
