package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of the services topic tree.
const DefaultTopicPrefix = "services"

// Topics builds services topics under a common prefix.
// Using these helpers keeps the client and the middleman in agreement on
// the topic hierarchy:
//
//	<prefix>/request/<kind>                      requests to the middleman
//	<prefix>/reply/<client_id>/<request_id>      correlated replies
//	<prefix>/alert/<name>                        alert fan-out
//	<prefix>/discovery/<service>                 service presence (retained)
//	<prefix>/slowcontrol/<service>/request       remote slow-control access
//	<prefix>/status/<client_id>                  connection status / LWT
//	<prefix>/middleman/status                    middleman beacon
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics rooted at prefix, or at DefaultTopicPrefix if empty.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Request returns the topic the middleman listens on for a request kind.
//
// Example: services/request/sql_query
func (t Topics) Request(kind string) string {
	return fmt.Sprintf("%s/request/%s", t.root(), kind)
}

// Reply returns the reply topic for one request.
//
// Example: services/reply/pump-ctl/9b2f...
func (t Topics) Reply(clientID, requestID string) string {
	return fmt.Sprintf("%s/reply/%s/%s", t.root(), clientID, requestID)
}

// Alert returns the topic an alert is published on.
//
// Example: services/alert/overtemp
func (t Topics) Alert(name string) string {
	return fmt.Sprintf("%s/alert/%s", t.root(), name)
}

// Discovery returns the presence topic of a service.
//
// Example: services/discovery/pump-ctl
func (t Topics) Discovery(service string) string {
	return fmt.Sprintf("%s/discovery/%s", t.root(), service)
}

// SlowControl returns the topic on which a service accepts slow-control requests.
//
// Example: services/slowcontrol/pump-ctl/request
func (t Topics) SlowControl(service string) string {
	return fmt.Sprintf("%s/slowcontrol/%s/request", t.root(), service)
}

// SlowControlReply returns the topic a slow-control requester listens on
// for one answer.
//
// Example: services/slowcontrol/reply/servicesctl-1a2b/9b2f...
func (t Topics) SlowControlReply(clientID, requestID string) string {
	return fmt.Sprintf("%s/slowcontrol/reply/%s/%s", t.root(), clientID, requestID)
}

// ClientStatus returns the connection status topic of an MQTT client.
//
// Example: services/status/pump-ctl
func (t Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", t.root(), clientID)
}

// MiddlemanStatus returns the topic of the middleman's periodic beacon.
//
// Example: services/middleman/status
func (t Topics) MiddlemanStatus() string {
	return fmt.Sprintf("%s/middleman/status", t.root())
}

// ClientReplies returns a pattern matching every reply addressed to a client.
//
// Pattern: services/reply/<client_id>/+
func (t Topics) ClientReplies(clientID string) string {
	return fmt.Sprintf("%s/reply/%s/+", t.root(), clientID)
}

// AllRequests returns a pattern matching every request kind.
//
// Pattern: services/request/+
func (t Topics) AllRequests() string {
	return fmt.Sprintf("%s/request/+", t.root())
}

// AllAlerts returns a pattern matching every alert.
//
// Pattern: services/alert/+
func (t Topics) AllAlerts() string {
	return fmt.Sprintf("%s/alert/+", t.root())
}

// AllDiscovery returns a pattern matching every service presence record.
//
// Pattern: services/discovery/+
func (t Topics) AllDiscovery() string {
	return fmt.Sprintf("%s/discovery/+", t.root())
}

// LastLevel returns the final level of a topic ("services/alert/overtemp" → "overtemp").
func LastLevel(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// ValidLevel reports whether s can be used as a single topic level:
// non-empty and free of '/', '+' and '#'.
func ValidLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}

// Match reports whether topic matches the subscription filter, honouring
// the '+' and '#' wildcards.
func Match(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
