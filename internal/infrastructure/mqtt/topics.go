package mqtt

// Topic layout for the StudioTether MQTT surface.
//
// The daemon keeps the hierarchy flat and predictable:
//
//	studiotether/status            retained daemon status, doubles as LWT target
//	studiotether/event/<category>  fire-and-forget notifications (connection, capture)
//	studiotether/cmd/<name>        inbound remote commands (navigate, rotation, interval)
//
// External listeners (overlay renderers, studio dashboards, loggers) subscribe
// to the event branch; automation controllers publish into the cmd branch.
const (
	// TopicPrefix roots every topic the daemon touches.
	TopicPrefix = "studiotether"

	// TopicPrefixEvent roots outbound event topics.
	TopicPrefixEvent = TopicPrefix + "/event"

	// TopicPrefixCommand roots inbound command topics.
	TopicPrefixCommand = TopicPrefix + "/cmd"
)

// Topics builds topic strings so call sites never assemble paths by hand.
//
//	topics := mqtt.Topics{}
//	topics.SystemStatus() // "studiotether/status"
type Topics struct{}

// SystemStatus returns the retained daemon status topic. The LWT is
// registered against the same topic, so a crash flips it to offline
// without any action from the daemon.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/status"
}

// Event returns the topic for an arbitrary event category.
func (Topics) Event(category string) string {
	return TopicPrefixEvent + "/" + category
}

// ConnectionEvent returns the topic carrying camera session transitions.
func (Topics) ConnectionEvent() string {
	return TopicPrefixEvent + "/connection"
}

// CaptureEvent returns the topic carrying capture ingest notifications.
func (Topics) CaptureEvent() string {
	return TopicPrefixEvent + "/capture"
}

// Command returns the topic for a named inbound command.
func (Topics) Command(name string) string {
	return TopicPrefixCommand + "/" + name
}

// AllEvents returns a wildcard matching every event topic.
func (Topics) AllEvents() string {
	return TopicPrefixEvent + "/+"
}

// AllCommands returns a wildcard matching every command topic. The daemon
// subscribes to this once and dispatches on the final topic segment.
func (Topics) AllCommands() string {
	return TopicPrefixCommand + "/#"
}

// AllTopics returns a wildcard matching the entire StudioTether tree.
// Subscribing to it receives all traffic, including our own publishes.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
