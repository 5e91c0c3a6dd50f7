package records

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a record slot.
//
//	Removed -> Update            add
//	Update  -> Normal            countdown exhausted
//	Normal|Suspend -> Update     TXT change or resume
//	Normal  -> Suspend           link down
//	Normal|Suspend -> Remove     withdrawal or power off
//	Remove  -> Removed           countdown exhausted, slot freed
type State uint8

const (
	// StateRemoved marks a free slot.
	StateRemoved State = iota
	// StateUpdate records are announced at full TTL on every scheduler pass.
	StateUpdate
	// StateNormal records are fully announced and only answer queries.
	StateNormal
	// StateSuspend records send goodbyes, then park until resumed.
	StateSuspend
	// StateRemove records send goodbyes, then free their slot.
	StateRemove
)

func (s State) String() string {
	switch s {
	case StateRemoved:
		return "removed"
	case StateUpdate:
		return "update"
	case StateNormal:
		return "normal"
	case StateSuspend:
		return "suspend"
	case StateRemove:
		return "remove"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Active reports whether the slot holds a record that has not been
// withdrawn.
func (s State) Active() bool {
	return s != StateRemoved && s != StateRemove
}

// Advertised reports whether the record is currently offered to the
// network.
func (s State) Advertised() bool {
	return s == StateNormal || s == StateUpdate
}

// Interface is the logical network interface a record is published on.
type Interface uint8

const (
	Station Interface = iota
	SoftAP
)

// Interfaces lists every logical interface.
var Interfaces = []Interface{Station, SoftAP}

func (i Interface) String() string {
	switch i {
	case Station:
		return "station"
	case SoftAP:
		return "softap"
	default:
		return fmt.Sprintf("interface(%d)", uint8(i))
	}
}

// ParseInterface is the inverse of Interface.String. It accepts "sta" and
// "ap" as short forms.
func ParseInterface(s string) (Interface, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "station", "sta":
		return Station, nil
	case "softap", "ap":
		return SoftAP, nil
	default:
		return 0, fmt.Errorf("unknown interface %q", s)
	}
}
