package mqtt

// DefaultPrefix is the topic namespace used when no prefix is
// configured.
const DefaultPrefix = "benchrig"

// Topics builds every topic in the rig's MQTT namespace, so the layout
// lives in exactly one place.
//
// The zero value uses DefaultPrefix; set Prefix to relocate the whole
// namespace (mqtt.topics.prefix in config.yaml):
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.Topics.Prefix}
//	topics.State("furnace-1", "measure") // "benchrig/state/furnace-1/measure"
//
// Command paths use the instrument's dotted notation ("pid.gain"). Dots
// are not MQTT level separators, so a dotted path is always one level.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// Command is where clients publish to operate one command node. The
// verb is "get", "set", or "invoke".
//
//	benchrig/command/furnace-1/setpoint/set
func (t Topics) Command(instrument, path, verb string) string {
	return t.prefix() + "/command/" + instrument + "/" + path + "/" + verb
}

// State carries retained value updates for one instrument node.
//
//	benchrig/state/furnace-1/measure
func (t Topics) State(instrument, path string) string {
	return t.prefix() + "/state/" + instrument + "/" + path
}

// Ack answers every command exactly once, successful or not.
//
//	benchrig/ack/furnace-1
func (t Topics) Ack(instrument string) string {
	return t.prefix() + "/ack/" + instrument
}

// SystemStatus is where the service announces itself and where the
// broker publishes the Last Will if the process dies ungracefully.
//
//	benchrig/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// Subscription patterns.

// AllCommands matches every command topic: prefix/command/+/+/+.
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+/+/+"
}

// AllStates matches every state topic: prefix/state/+/+.
func (t Topics) AllStates() string {
	return t.prefix() + "/state/+/+"
}

// AllAcks matches every ack topic: prefix/ack/+.
func (t Topics) AllAcks() string {
	return t.prefix() + "/ack/+"
}

// All matches the entire namespace. This receives every message the
// rig produces, so use it sparingly.
func (t Topics) All() string {
	return t.prefix() + "/#"
}
