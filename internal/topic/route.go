// Package topic classifies inbound topics into dispatch routes.
package topic

import "strings"

// Route is the dispatch path selected for an inbound message
type Route int

const (
	// RouteUnrecognized messages are dropped without error
	RouteUnrecognized Route = iota
	// RouteSensor replaces the sensor snapshot
	RouteSensor
	// RouteCommand forwards the raw payload to the command executor
	RouteCommand
	// RouteInterrupt records the payload in the history table
	RouteInterrupt
)

// Substrings matched against topic names, in precedence order.
const (
	InterruptMarker = "interrupt"
	SensorMarker    = "info"
	CommandMarker   = "commands"
)

var precedence = []struct {
	marker string
	route  Route
}{
	{InterruptMarker, RouteInterrupt},
	{SensorMarker, RouteSensor},
	{CommandMarker, RouteCommand},
}

// Classify returns the route for a topic. A topic containing several markers
// resolves to the first one in precedence order: interrupt, info, commands.
func Classify(topic string) Route {
	for _, p := range precedence {
		if strings.Contains(topic, p.marker) {
			return p.route
		}
	}
	return RouteUnrecognized
}

func (r Route) String() string {
	switch r {
	case RouteSensor:
		return "sensor"
	case RouteCommand:
		return "command"
	case RouteInterrupt:
		return "interrupt"
	default:
		return "unrecognized"
	}
}
