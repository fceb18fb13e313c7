package mqtt

import "fmt"

// maxPayloadSize caps outbound messages at 1 MiB. Thumbnails stay out of
// MQTT by design (events carry capture IDs, the monitor API serves bytes),
// so anything larger than this is a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for broker acknowledgement at
// the given QoS. Retained publishes replace the broker's stored copy, so
// use them for state topics only, never for events.
//
// The call validates before it touches the network: empty topics, QoS
// outside 0..2, and oversized payloads fail fast without a broker round
// trip, and a disconnected session returns ErrNotConnected rather than
// queueing silently.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit is %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed, defaultPublishTimeout)
}
