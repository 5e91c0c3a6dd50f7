// Package state advances record lifecycles: repeated announcements for new
// or changed records, goodbyes for withdrawn ones.
package state

import (
	"github.com/joshuafuller/linkbeacon/internal/records"
)

// Emitter sends the record set of a slot. Announce uses the record's TTL,
// Goodbye uses TTL 0 (RFC 6762 §10.1).
type Emitter interface {
	Announce(rec *records.ServiceRecord)
	Goodbye(rec *records.ServiceRecord)
}

// Advance runs one scheduler pass over every slot. The caller holds the
// table lock. It reports whether any record still has a countdown running.
func Advance(t *records.Table, e Emitter) bool {
	for i := 0; i < t.Len(); i++ {
		rec := t.At(i)
		switch rec.State {
		case records.StateRemove:
			if rec.CountDown > 0 {
				e.Goodbye(rec)
				rec.CountDown--
			}
			if rec.CountDown == 0 {
				t.Release(i)
			}

		case records.StateSuspend:
			if rec.CountDown > 0 {
				e.Goodbye(rec)
				rec.CountDown--
			}

		case records.StateUpdate:
			if rec.CountDown > 0 {
				e.Announce(rec)
				rec.CountDown--
			}
			if rec.CountDown == 0 {
				rec.State = records.StateNormal
			}
		}
	}
	return t.Pending()
}
