// Package records holds the bounded table of published service records and
// their lifecycle state.
//
// Table is not safe for concurrent use; the responder serializes every call
// under its own mutex.
package records

import (
	"fmt"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// DefaultCapacity is the number of slots in a table created with capacity 0.
const DefaultCapacity = 8

// Service describes one published service instance.
type Service struct {
	Hostname     string // e.g. "dev.local."
	ServiceName  string // e.g. "_http._tcp.local."
	InstanceName string // e.g. "My Device._http._tcp.local."
	TXT          string // dotted form, see message.EncodeTXT
	Interface    Interface
	TTL          uint32
	Port         uint16
}

// ServiceRecord is a table slot.
type ServiceRecord struct {
	Service
	CountDown uint8
	State     State
}

// Table is a fixed-capacity set of record slots.
type Table struct {
	slots []ServiceRecord
}

// NewTable creates a table with capacity slots.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{slots: make([]ServiceRecord, capacity)}
}

// Len returns the table capacity.
func (t *Table) Len() int {
	return len(t.slots)
}

// At returns the slot at index i.
func (t *Table) At(i int) *ServiceRecord {
	return &t.slots[i]
}

// Release frees slot i, dropping its strings.
func (t *Table) Release(i int) {
	t.slots[i] = ServiceRecord{}
}

func (r *ServiceRecord) matches(serviceName string, iface Interface) bool {
	if r.Interface != iface {
		return false
	}
	return serviceName == "" || message.EqualNames(r.ServiceName, serviceName)
}

func (r *ServiceRecord) schedule(state State) {
	r.State = state
	r.CountDown = protocol.AnnounceCount
}

// Add publishes svc. An active record with the same service name on the same
// interface is replaced in place; otherwise the first free slot is used.
// It returns the slot index, or errors.ErrResourceExhausted when the table is
// full.
func (t *Table) Add(svc Service) (int, error) {
	slot := -1
	for i := range t.slots {
		r := &t.slots[i]
		if r.State.Active() && r.matches(svc.ServiceName, svc.Interface) {
			slot = i
			break
		}
		if slot < 0 && r.State == StateRemoved {
			slot = i
		}
	}
	if slot < 0 {
		return -1, fmt.Errorf("add %s on %s: %w", svc.ServiceName, svc.Interface, errors.ErrResourceExhausted)
	}

	r := &t.slots[slot]
	r.Service = svc
	r.schedule(StateUpdate)
	return slot, nil
}

// UpdateTXT replaces the TXT of the active record matching serviceName on
// iface and schedules it for announcement. It reports whether a record
// matched.
func (t *Table) UpdateTXT(serviceName string, iface Interface, txt string) bool {
	for i := range t.slots {
		r := &t.slots[i]
		if r.State.Active() && serviceName != "" && r.matches(serviceName, iface) {
			r.TXT = txt
			r.schedule(StateUpdate)
			return true
		}
	}
	return false
}

// Suspend withdraws the active records on iface. An empty serviceName
// selects every service. With willRemove the records are freed once their
// goodbyes have been sent; otherwise they park in StateSuspend, and records
// already being removed stay that way. It returns the number of records
// affected.
func (t *Table) Suspend(serviceName string, iface Interface, willRemove bool) int {
	n := 0
	for i := range t.slots {
		r := &t.slots[i]
		if !r.State.Active() || !r.matches(serviceName, iface) {
			continue
		}
		if willRemove {
			r.schedule(StateRemove)
		} else {
			r.schedule(StateSuspend)
		}
		n++
	}
	return n
}

// Resume schedules the suspended, updating or normal records on iface for
// announcement. An empty serviceName selects every service. Records being
// removed are never resumed.
func (t *Table) Resume(serviceName string, iface Interface) int {
	n := 0
	for i := range t.slots {
		r := &t.slots[i]
		if !r.State.Active() || !r.matches(serviceName, iface) {
			continue
		}
		r.schedule(StateUpdate)
		n++
	}
	return n
}

// Status returns the state of the record matching serviceName on iface,
// preferring an active one over one being removed, or StateRemoved when
// there is none.
func (t *Table) Status(serviceName string, iface Interface) State {
	state := StateRemoved
	if serviceName == "" {
		return state
	}
	for i := range t.slots {
		r := &t.slots[i]
		if r.State == StateRemoved || !r.matches(serviceName, iface) {
			continue
		}
		if r.State.Active() {
			return r.State
		}
		state = r.State
	}
	return state
}

// Pending reports whether any record still has announcements or goodbyes to
// send.
func (t *Table) Pending() bool {
	for i := range t.slots {
		if t.slots[i].State != StateRemoved && t.slots[i].CountDown > 0 {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of every occupied slot.
func (t *Table) Snapshot() []ServiceRecord {
	out := make([]ServiceRecord, 0, len(t.slots))
	for _, r := range t.slots {
		if r.State != StateRemoved {
			out = append(out, r)
		}
	}
	return out
}

// Counts returns the number of slots in each state, free slots included.
func (t *Table) Counts() map[State]int {
	counts := make(map[State]int, 5)
	for _, r := range t.slots {
		counts[r.State]++
	}
	return counts
}
