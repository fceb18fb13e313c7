package mqtt

import "fmt"

// Subscribe registers handler for topic and records the pair in the replay
// table, so the subscription survives reconnects. Standard MQTT wildcards
// apply: the daemon itself subscribes to studiotether/cmd/# this way and
// routes on the final segment.
//
// Handlers run on paho goroutines wrapped in panic recovery. If the broker
// rejects or times out the request, the replay entry is rolled back so a
// failed subscribe leaves no trace.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Record first: a reconnect racing this call should replay the topic.
	c.subMu.Lock()
	c.subs[topic] = route{qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.guard(handler)), ErrSubscribeFailed, defaultPublishTimeout); err != nil {
		c.dropRoute(topic)
		return err
	}

	return nil
}

// Unsubscribe removes the replay entry and tells the broker to stop
// delivering topic. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.dropRoute(topic)

	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed, defaultPublishTimeout)
}

// SubscriptionCount reports the size of the replay table.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

func (c *Client) dropRoute(topic string) {
	c.subMu.Lock()
	delete(c.subs, topic)
	c.subMu.Unlock()
}
