// Package linkstate delivers link status changes to the responder.
package linkstate

import "fmt"

// Event is a link status notification.
type Event uint8

const (
	StationUp Event = iota + 1
	StationDown
	APUp
	APDown
	// PowerOff is raised right before the device shuts down.
	PowerOff
)

func (e Event) String() string {
	switch e {
	case StationUp:
		return "station-up"
	case StationDown:
		return "station-down"
	case APUp:
		return "ap-up"
	case APDown:
		return "ap-down"
	case PowerOff:
		return "power-off"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}
