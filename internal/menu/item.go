package menu

import "fmt"

// Item identifies one of the sensor slots shown in the menu.
type Item int

// Menu slots in display order.
const (
	DHT Item = iota
	Keypad
	Motion
	Rotary
)

// NumItems is the number of menu slots.
const NumItems = 4

// layout controls how a slot's screen is laid out on a 16x2 display.
// Short labels share the first row with the state word; long labels
// push the state word down next to the menu number.
type layout int

const (
	layoutInline layout = iota
	layoutWrapped
)

type itemInfo struct {
	name   string
	label  string
	topic  string
	layout layout
}

var items = [NumItems]itemInfo{
	DHT:    {name: "dht", label: "DHT11", topic: "sensors/dht/0/cmd", layout: layoutInline},
	Keypad: {name: "keypad", label: "KEYPAD", topic: "sensors/keypad/0/cmd", layout: layoutInline},
	Motion: {name: "motion", label: "MOTION SENSOR", topic: "sensors/mosense/0/cmd", layout: layoutWrapped},
	Rotary: {name: "rotary", label: "ROTARY ENCODER", topic: "sensors/rotary/0/cmd", layout: layoutWrapped},
}

// Items returns every slot in index order.
func Items() []Item {
	return []Item{DHT, Keypad, Motion, Rotary}
}

// Valid reports whether i indexes a slot.
func (i Item) Valid() bool {
	return i >= 0 && i < NumItems
}

// Name is the short lowercase identifier used in config keys, logs and metrics.
func (i Item) Name() string {
	if !i.Valid() {
		return fmt.Sprintf("item(%d)", int(i))
	}
	return items[i].name
}

// Label is the text shown on the display's first row.
func (i Item) Label() string {
	if !i.Valid() {
		return ""
	}
	return items[i].label
}

// DefaultTopic is the command topic the slot's sensor node subscribes to.
func (i Item) DefaultTopic() string {
	if !i.Valid() {
		return ""
	}
	return items[i].topic
}

func (i Item) String() string {
	return i.Name()
}

// Topics maps each slot to its command topic.
type Topics [NumItems]string

// DefaultTopics returns the stock topic table.
func DefaultTopics() Topics {
	var t Topics
	for _, it := range Items() {
		t[it] = it.DefaultTopic()
	}
	return t
}

// Topic returns the topic bound to it, or "" for an invalid slot.
func (t Topics) Topic(it Item) string {
	if !it.Valid() {
		return ""
	}
	return t[it]
}

// Screen renders the two display rows for a slot, separated by "\n".
func Screen(it Item, enabled bool) string {
	if !it.Valid() {
		return ""
	}
	state := "DISABLED"
	if enabled {
		state = "ENABLED"
	}
	info := items[it]
	if info.layout == layoutWrapped {
		return fmt.Sprintf("%s\n%8s MENU:%d", info.label, state, int(it)+1)
	}
	return fmt.Sprintf("%s %s\nMENU:%d", info.label, state, int(it)+1)
}
