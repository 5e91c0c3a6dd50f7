package responder

import (
	"fmt"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/linkstate"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
	"github.com/joshuafuller/linkbeacon/internal/records"
)

// Add publishes svc on svc.Interface and schedules five announcements.
//
// RFC 6762 §8.3: Announcing
//
// A record already published for the same service name on the same
// interface is replaced in place and re-announced. A zero TTL selects 120
// seconds.
//
// Returns:
//   - ValidationError: a name, the instance label or the TXT is malformed
//   - errors.ErrResourceExhausted: every slot is in use
//   - errors.ErrClosed: the responder was closed
//
// Example:
//
//	err := resp.Add(records.Service{
//	    Hostname:     "dev.local.",
//	    ServiceName:  "_http._tcp.local.",
//	    InstanceName: "My Device._http._tcp.local.",
//	    TXT:          "path=/.version=2",
//	    Interface:    records.Station,
//	    Port:         80,
//	})
//	if errors.Is(err, errors.ErrResourceExhausted) {
//	    // remove something first
//	}
func (r *Responder) Add(svc records.Service) error {
	if err := validateService(svc); err != nil {
		return err
	}
	if svc.TTL == 0 {
		svc.TTL = protocol.TTLService
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.ErrClosed
	}
	slot, err := r.table.Add(svc)
	if err != nil {
		return err
	}
	r.log.WithField("service", svc.ServiceName).
		WithField("interface", svc.Interface).
		WithField("slot", slot).
		Info("service added")
	r.scheduled()
	return nil
}

func validateService(svc records.Service) error {
	if message.CanonicalName(svc.ServiceName) == "" {
		return &errors.ValidationError{Field: "service", Value: svc.ServiceName, Message: "must not be empty"}
	}
	if _, err := message.EncodeName(svc.ServiceName); err != nil {
		return err
	}
	if message.CanonicalName(svc.Hostname) == "" {
		return &errors.ValidationError{Field: "hostname", Value: svc.Hostname, Message: "must not be empty"}
	}
	if _, err := message.EncodeName(svc.Hostname); err != nil {
		return err
	}

	// The instance name is "<label>.<service name>"; the label is opaque.
	full := message.CanonicalName(svc.InstanceName)
	service := message.CanonicalName(svc.ServiceName)
	if len(full) <= len(service)+1 || !message.EqualNames(full[len(full)-len(service):], service) ||
		full[len(full)-len(service)-1] != '.' {
		return &errors.ValidationError{
			Field:   "instance",
			Value:   svc.InstanceName,
			Message: fmt.Sprintf("must be <label>.%s", service),
		}
	}
	if _, err := message.EncodeServiceInstanceName(full[:len(full)-len(service)-1], service); err != nil {
		return err
	}

	if _, err := message.EncodeTXT(svc.TXT); err != nil {
		return err
	}
	return nil
}

// UpdateTXT replaces the TXT of the record published for serviceName on
// iface and re-announces it (RFC 6762 §8.4). It reports whether a record
// matched; a missing record is not an error.
func (r *Responder) UpdateTXT(serviceName string, iface records.Interface, txt string) (bool, error) {
	if _, err := message.EncodeTXT(txt); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, errors.ErrClosed
	}
	if !r.table.UpdateTXT(serviceName, iface, txt) {
		return false, nil
	}
	r.scheduled()
	return true, nil
}

// Suspend withdraws the records for serviceName on iface with goodbye
// packets (RFC 6762 §10.1). An empty serviceName selects every service on
// iface.
//
// With willRemove the records are freed after their goodbyes; otherwise they
// keep their slot and can be republished with Resume. It returns the number
// of records affected.
func (r *Responder) Suspend(serviceName string, iface records.Interface, willRemove bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.table.Suspend(serviceName, iface, willRemove)
	if n > 0 && !r.closed {
		r.log.WithField("interface", iface).WithField("remove", willRemove).Debugf("withdrawing %d record(s)", n)
		r.scheduled()
	}
	return n
}

// Resume republishes the records for serviceName on iface with five
// announcements. An empty serviceName selects every service on iface.
// Records being removed are not resumed. It returns the number of records
// affected.
func (r *Responder) Resume(serviceName string, iface records.Interface) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.table.Resume(serviceName, iface)
	if n > 0 && !r.closed {
		r.log.WithField("interface", iface).Debugf("republishing %d record(s)", n)
		r.scheduled()
	}
	return n
}

// Status returns the state of the record for serviceName on iface, or
// records.StateRemoved when there is none.
func (r *Responder) Status(serviceName string, iface records.Interface) records.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.table.Status(serviceName, iface)
}

// Records returns a copy of every published record.
func (r *Responder) Records() []records.ServiceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.table.Snapshot()
}

// HandleEvent applies a link state change.
//
//	StationDown, APDown  suspend every record on the interface
//	StationUp, APUp      resume every record on the interface
//	PowerOff             remove every record and send the first goodbye now
//
// Events arriving on the channel given to WithLinkEvents are handled the same
// way.
func (r *Responder) HandleEvent(ev linkstate.Event) {
	r.log.WithField("event", ev).Info("link event")

	switch ev {
	case linkstate.StationDown:
		r.Suspend("", records.Station, false)
	case linkstate.StationUp:
		r.Resume("", records.Station)
	case linkstate.APDown:
		r.Suspend("", records.SoftAP, false)
	case linkstate.APUp:
		r.Resume("", records.SoftAP)
	case linkstate.PowerOff:
		r.powerOff()
	default:
		r.log.WithField("event", ev).Warn("ignoring unknown link event")
	}
}

func (r *Responder) powerOff() {
	r.mu.Lock()
	for _, iface := range records.Interfaces {
		r.table.Suspend("", iface, true)
	}
	var msgs [][]byte
	if !r.closed {
		msgs = r.advanceLocked()
	}
	r.mu.Unlock()

	r.send(msgs)
}
