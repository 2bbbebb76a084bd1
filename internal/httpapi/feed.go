package httpapi

import (
	"time"

	"github.com/ent0n29/proctor/internal/protocol"
	"github.com/ent0n29/proctor/internal/session"
)

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func advisoryMessage(a session.Advisory) protocol.Advisory {
	return protocol.Advisory{
		Kind:        string(a.Kind),
		Message:     a.Message,
		RaisedAtMs:  msOrZero(a.RaisedAt),
		ExpiresAtMs: msOrZero(a.ExpiresAt),
	}
}

func snapshotMessage(snap session.Snapshot) protocol.SessionSnapshot {
	advisories := make([]protocol.Advisory, 0, len(snap.Advisories))
	for _, a := range snap.Advisories {
		advisories = append(advisories, advisoryMessage(a))
	}
	sess := snap.Session
	return protocol.SessionSnapshot{
		Type:                 protocol.TypeSessionSnapshot,
		SessionID:            sess.ID,
		StudentName:          sess.StudentName,
		Status:               string(sess.Status),
		Active:               snap.Active,
		ElapsedSeconds:       snap.ElapsedSeconds,
		HeadMovementCount:    sess.HeadMovementCount,
		DeviceDetectionCount: sess.DeviceDetectionCount,
		CheatingPercentage:   sess.CheatingPercentage,
		TrustScore:           sess.TrustScore,
		Tier:                 string(snap.Tier),
		Gauge:                string(snap.Gauge),
		CameraAvailable:      snap.CameraAvailable,
		Advisories:           advisories,
		TSMs:                 time.Now().UnixMilli(),
	}
}

// updateMessage converts a lifecycle update into its websocket payload.
func updateMessage(u session.Update) (any, bool) {
	switch u.Type {
	case session.UpdateSnapshot:
		return snapshotMessage(u.Snapshot), true
	case session.UpdateAdvisory, session.UpdateAdvisoryCleared:
		if u.Advisory == nil {
			return nil, false
		}
		t := protocol.TypeAdvisoryRaised
		if u.Type == session.UpdateAdvisoryCleared {
			t = protocol.TypeAdvisoryCleared
		}
		return protocol.AdvisoryEvent{
			Type:      t,
			SessionID: u.Snapshot.Session.ID,
			Advisory:  advisoryMessage(*u.Advisory),
			TSMs:      time.Now().UnixMilli(),
		}, true
	case session.UpdateEnded:
		sess := u.Snapshot.Session
		var end int64
		if sess.EndTime != nil {
			end = sess.EndTime.UnixMilli()
		}
		return protocol.SessionEnded{
			Type:               protocol.TypeSessionEnded,
			SessionID:          sess.ID,
			Status:             string(sess.Status),
			TrustScore:         sess.TrustScore,
			CheatingPercentage: sess.CheatingPercentage,
			EndTimeMs:          end,
		}, true
	default:
		return nil, false
	}
}

func messageTypeOf(msg any) (protocol.MessageType, bool) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionSnapshot:
		return m.Type, true
	case protocol.AdvisoryEvent:
		return m.Type, true
	case protocol.SessionEnded:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
