package backend

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names a request type. The middleman routes on it.
type Kind string

// Request kinds understood by the middleman.
const (
	KindReady              Kind = "ready"
	KindSQLQuery           Kind = "sql_query"
	KindLog                Kind = "log"
	KindAlarm              Kind = "alarm"
	KindMonitoring         Kind = "monitoring"
	KindCalibrationSend    Kind = "calibration_send"
	KindCalibrationGet     Kind = "calibration_get"
	KindDeviceConfigSend   Kind = "device_config_send"
	KindDeviceConfigGet    Kind = "device_config_get"
	KindRunConfigSend      Kind = "run_config_send"
	KindRunConfigGet       Kind = "run_config_get"
	KindRunDeviceConfigGet Kind = "run_device_config_get"
	KindROOTPlotSend       Kind = "root_plot_send"
	KindROOTPlotGet        Kind = "root_plot_get"
	KindPlotSend           Kind = "plot_send"
	KindPlotGet            Kind = "plot_get"
	KindAlert              Kind = "alert"
)

// LatestVersion asks the middleman for the newest stored version.
const LatestVersion = -1

// Request is the envelope published to the middleman.
// The payload is opaque; the optional fields are set per kind.
type Request struct {
	RequestID string    `json:"request_id"`
	Kind      Kind      `json:"kind"`
	Source    string    `json:"source"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Device    string    `json:"device,omitempty"`
	Database  string    `json:"database,omitempty"`
	Name      string    `json:"name,omitempty"`
	Version   *int      `json:"version,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Deadline  time.Time `json:"deadline,omitzero"`
	Payload   string    `json:"payload,omitempty"`

	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	DrawOptions string `json:"draw_options,omitempty"`
	Persistent  bool   `json:"persistent,omitempty"`
	Severity    *int   `json:"severity,omitempty"`
	Level       *int   `json:"level,omitempty"`
	ConfigID    *int   `json:"config_id,omitempty"`
}

// Response is the middleman's reply to a Request.
type Response struct {
	RequestID   string   `json:"request_id"`
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
	Rows        []string `json:"rows,omitempty"`
	Version     *int     `json:"version,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Payload     string   `json:"payload,omitempty"`
	DrawOptions string   `json:"draw_options,omitempty"`
}

// Int returns a pointer to v, for the optional integer fields.
func Int(v int) *int { return &v }

// VersionOr returns the response version, or def if none was sent.
func (r Response) VersionOr(def int) int {
	if r.Version == nil {
		return def
	}
	return *r.Version
}

// Encode serialises a request for the wire.
func (r Request) Encode() ([]byte, error) {
	if r.Kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrInvalidRequest)
	}
	return json.Marshal(r)
}

// DecodeRequest parses a request envelope.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("decoding request: %w", err)
	}
	return r, nil
}

// DecodeResponse parses a response envelope.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return r, nil
}
