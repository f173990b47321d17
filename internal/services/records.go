package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/services-client/internal/backend"
)

// SendCalibrationData stores a calibration blob for the device and returns
// the version the middleman assigned.
func (s *Services) SendCalibrationData(ctx context.Context, jsonData, description string, opts ...CallOption) (int, error) {
	if err := requireJSON(jsonData); err != nil {
		return backend.LatestVersion, err
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:        backend.KindCalibrationSend,
		Device:      o.device,
		Timestamp:   o.timestamp.UnixMilli(),
		Payload:     jsonData,
		Description: description,
	}, o.timeout)
	if err != nil {
		return backend.LatestVersion, err
	}
	return resp.VersionOr(backend.LatestVersion), nil
}

// GetCalibrationData fetches a calibration blob; WithVersion selects an
// older one.
func (s *Services) GetCalibrationData(ctx context.Context, opts ...CallOption) (string, error) {
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:      backend.KindCalibrationGet,
		Device:    o.device,
		Timestamp: o.timestamp.UnixMilli(),
		Version:   backend.Int(o.version),
	}, o.timeout)
	if err != nil {
		return "", err
	}
	return resp.Payload, nil
}

// SendDeviceConfig stores a device configuration and returns its version.
func (s *Services) SendDeviceConfig(ctx context.Context, jsonData, author, description string, opts ...CallOption) (int, error) {
	if err := requireJSON(jsonData); err != nil {
		return backend.LatestVersion, err
	}
	if author == "" {
		return backend.LatestVersion, fmt.Errorf("%w: author is required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:        backend.KindDeviceConfigSend,
		Device:      o.device,
		Timestamp:   o.timestamp.UnixMilli(),
		Payload:     jsonData,
		Author:      author,
		Description: description,
	}, o.timeout)
	if err != nil {
		return backend.LatestVersion, err
	}
	return resp.VersionOr(backend.LatestVersion), nil
}

// GetDeviceConfig fetches a device configuration; WithVersion selects an
// older one.
func (s *Services) GetDeviceConfig(ctx context.Context, opts ...CallOption) (string, error) {
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:      backend.KindDeviceConfigGet,
		Device:    o.device,
		Timestamp: o.timestamp.UnixMilli(),
		Version:   backend.Int(o.version),
	}, o.timeout)
	if err != nil {
		return "", err
	}
	return resp.Payload, nil
}

// SendRunConfig stores a named run configuration and returns its version.
func (s *Services) SendRunConfig(ctx context.Context, jsonData, name, author, description string, opts ...CallOption) (int, error) {
	if err := requireJSON(jsonData); err != nil {
		return backend.LatestVersion, err
	}
	if name == "" || author == "" {
		return backend.LatestVersion, fmt.Errorf("%w: name and author are required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:        backend.KindRunConfigSend,
		Device:      o.device,
		Name:        name,
		Timestamp:   o.timestamp.UnixMilli(),
		Payload:     jsonData,
		Author:      author,
		Description: description,
	}, o.timeout)
	if err != nil {
		return backend.LatestVersion, err
	}
	return resp.VersionOr(backend.LatestVersion), nil
}

// GetRunConfig fetches a run configuration by its unique ID.
func (s *Services) GetRunConfig(ctx context.Context, configID int, opts ...CallOption) (string, error) {
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:      backend.KindRunConfigGet,
		Device:    o.device,
		Timestamp: o.timestamp.UnixMilli(),
		ConfigID:  backend.Int(configID),
	}, o.timeout)
	if err != nil {
		return "", err
	}
	return resp.Payload, nil
}

// GetRunConfigByName fetches a run configuration by name; WithVersion
// selects an older version.
func (s *Services) GetRunConfigByName(ctx context.Context, name string, opts ...CallOption) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: run config name is required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	resp, err := s.call(ctx, backend.Request{
		Kind:      backend.KindRunConfigGet,
		Device:    o.device,
		Name:      name,
		Timestamp: o.timestamp.UnixMilli(),
		Version:   backend.Int(o.version),
	}, o.timeout)
	if err != nil {
		return "", err
	}
	return resp.Payload, nil
}

// GetRunDeviceConfig fetches the device configuration referenced by a run
// configuration ID, with the device configuration's version.
func (s *Services) GetRunDeviceConfig(ctx context.Context, runConfigID int, opts ...CallOption) (string, int, error) {
	o := s.resolve(opts)
	return s.runDeviceConfig(ctx, o, backend.Request{
		Kind:     backend.KindRunDeviceConfigGet,
		ConfigID: backend.Int(runConfigID),
	})
}

// GetRunDeviceConfigByName is GetRunDeviceConfig addressed by run
// configuration name; WithVersion selects the run configuration version.
func (s *Services) GetRunDeviceConfigByName(ctx context.Context, runName string, opts ...CallOption) (string, int, error) {
	if runName == "" {
		return "", backend.LatestVersion, fmt.Errorf("%w: run config name is required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	return s.runDeviceConfig(ctx, o, backend.Request{
		Kind:    backend.KindRunDeviceConfigGet,
		Name:    runName,
		Version: backend.Int(o.version),
	})
}

func (s *Services) runDeviceConfig(ctx context.Context, o callOptions, req backend.Request) (string, int, error) {
	req.Device = o.device
	req.Timestamp = o.timestamp.UnixMilli()
	resp, err := s.call(ctx, req, o.timeout)
	if err != nil {
		return "", backend.LatestVersion, err
	}
	return resp.Payload, resp.VersionOr(backend.LatestVersion), nil
}

func requireJSON(data string) error {
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidArgument)
	}
	return nil
}
