// internal/handlers/chat_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/parley/internal/chat"
	"github.com/jason-s-yu/parley/internal/config"
	"github.com/jason-s-yu/parley/internal/middleware"
	"github.com/jason-s-yu/parley/internal/payload"
	"github.com/sirupsen/logrus"
)

// ChatWSHandler upgrades the request, wraps the socket in a session and pumps
// payloads until either side goes away.
func ChatWSHandler(logger *logrus.Logger, reg *chat.Registry, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{chatSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != chatSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the chat subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := newConn(cfg.OutboxSize, logger)
		log := logger.WithFields(logrus.Fields{"conn": conn.ID, "remote": r.RemoteAddr})
		conn.log = log
		middleware.LogWebSocketConnect(log, r.URL.Path)

		s := reg.NewSession(conn, log)

		go func() {
			writePump(ctx, c, conn, cfg, log)
			cancel()
		}()
		err = readPump(ctx, c, s, log)

		// the room is told before the session goes away
		if room := s.CurrentRoom(); room != nil {
			room.DisconnectMember(s)
		}
		s.Disconnect()
		middleware.LogWebSocketDisconnect(log, r.URL.Path, err)
	}
}

// readPump decodes inbound frames and hands them to the session until the
// socket or ctx ends.
func readPump(ctx context.Context, c *websocket.Conn, s *chat.Session, log logrus.FieldLogger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return nil
			}
			log.Warnf("read error: %v (CloseStatus: %d)", err, status)
			return err
		}

		if typ != websocket.MessageText {
			log.Warnf("received non-text message type %d, ignoring", typ)
			continue
		}

		p, err := payload.Decode(msg)
		if err != nil {
			log.Warnf("invalid payload: %v", err)
			s.SendSystemMessage("Invalid payload")
			continue
		}
		s.ProcessPayload(p)
	}
}

// writePump drains the outbox onto the socket and keeps it alive with pings.
// Once the connection is closed it flushes what is left and closes the socket.
func writePump(ctx context.Context, c *websocket.Conn, conn *Conn, cfg config.Config, log logrus.FieldLogger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	write := func(p payload.Payload) bool {
		data, err := payload.Encode(p)
		if err != nil {
			log.Warnf("failed to encode outgoing %s payload: %v", p.Kind(), err)
			return true
		}
		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		defer cancel()
		if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
			log.Warnf("failed to write to websocket: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-conn.out:
			if !write(p) {
				conn.Close()
				return
			}
		case <-conn.Done():
			// nothing is enqueued after Close, so the length only shrinks
			for len(conn.out) > 0 {
				if !write(<-conn.out) {
					return
				}
			}
			if conn.overflowed() {
				_ = c.Close(SlowConsumerError, "outbox overflow")
			} else {
				_ = c.Close(websocket.StatusNormalClosure, "disconnected")
			}
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Warnf("failed to send ping: %v, assuming disconnect", err)
				conn.Close()
				return
			}
		}
	}
}
