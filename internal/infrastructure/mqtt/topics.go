package mqtt

import (
	"fmt"
	"strings"
)

const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// TopicPrefixTelemetry is the base for device telemetry.
	// Scheme: graylogic/telemetry/{source}/{device_id}
	TopicPrefixTelemetry = TopicPrefix + "/telemetry"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics builds relay topic names.
type Topics struct{}

// Telemetry returns the topic a bridge publishes a device's messages to.
//
// Example: graylogic/telemetry/sigfox/2C30EB
func (Topics) Telemetry(source, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTelemetry, source, deviceID)
}

// AllTelemetry matches telemetry from every source and device.
func (Topics) AllTelemetry() string {
	return TopicPrefixTelemetry + "/+/+"
}

// RelayStatus returns the retained status topic for a relay instance.
//
// Example: graylogic/system/relay/graylogic-relay/status
func (Topics) RelayStatus(clientID string) string {
	return fmt.Sprintf("%s/relay/%s/status", TopicPrefixSystem, clientID)
}

// Match reports whether topic matches the subscription pattern, honouring
// the + and # wildcards.
func Match(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")

	for i, seg := range p {
		if seg == "#" {
			return i == len(p)-1
		}
		if i >= len(t) {
			return false
		}
		if seg != "+" && seg != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}
