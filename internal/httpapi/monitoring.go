package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/proctor/internal/logging"
	"github.com/ent0n29/proctor/internal/protocol"
	"github.com/ent0n29/proctor/internal/store"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

type stopResponse struct {
	Stopped bool           `json:"stopped"`
	Session *store.Session `json:"session,omitempty"`
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	st := seatFrom(r.Context())
	sess, err := st.Lifecycle.Start(r.Context(), st.Identity)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	st := seatFrom(r.Context())
	final, stopped, err := st.Lifecycle.Stop(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newStopResponse(final, stopped))
}

func (s *Server) handleGetMonitoring(w http.ResponseWriter, r *http.Request) {
	st := seatFrom(r.Context())
	snap, ok := st.Lifecycle.Snapshot()
	if !ok {
		respondError(w, http.StatusNotFound, "no_session", "no session has been started on this seat")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st := seatFrom(r.Context())
	final, stopped, err := s.seats.Logout(r.Context(), st.Token)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newStopResponse(final, stopped))
}

func newStopResponse(final store.Session, stopped bool) stopResponse {
	if !stopped {
		return stopResponse{}
	}
	return stopResponse{Stopped: true, Session: &final}
}

// handleMonitoringWS streams live updates for the seat's lifecycle. The feed
// survives across sessions, so a client can stay connected between sittings.
func (s *Server) handleMonitoringWS(w http.ResponseWriter, r *http.Request) {
	st := seatFrom(r.Context())
	lc := st.Lifecycle
	log := logging.L(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := lc.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbound := make(chan any, 16)
	if snap, ok := lc.Snapshot(); ok {
		outbound <- snapshotMessage(snap)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		write := func(msg any) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("websocket write failed", "error", err)
				cancel()
				_ = conn.Close()
				return false
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WS("outbound", string(t))
			}
			return true
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					cancel()
					_ = conn.Close()
					return
				}
			case msg := <-outbound:
				if !write(msg) {
					return
				}
			case u, ok := <-updates:
				if !ok {
					return
				}
				if msg, ok := updateMessage(u); ok && !write(msg) {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	queue := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Writes stay single-threaded; drop when the queue is saturated.
		}
	}

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			queue(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		control := parsed.(protocol.ClientControl)
		s.metrics.WS("inbound", string(control.Type))

		switch control.Action {
		case protocol.ActionStop:
			// The ended update reaches this connection through the subscription.
			if _, stopped, err := lc.Stop(context.WithoutCancel(r.Context())); err != nil {
				queue(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "stop_failed", Detail: err.Error()})
			} else if !stopped {
				queue(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "no_active_session", Detail: "no session is active"})
			}
		case protocol.ActionSnapshot, protocol.ActionPing:
			if snap, ok := lc.Snapshot(); ok {
				queue(snapshotMessage(snap))
			} else {
				queue(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "no_session", Detail: "no session has been started on this seat"})
			}
		}

		select {
		case <-ctx.Done():
			break readLoop
		default:
		}
	}

	cancel()
	<-writerDone
}
