package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const liveWriteTimeout = 5 * time.Second

// handleLive streams station status over a websocket: the current status
// on connect, then one message per state change. Client messages are
// ignored.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: originHosts(s.origins)}
	if len(s.origins) == 0 {
		opts.InsecureSkipVerify = true
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	ctx := c.CloseRead(r.Context())
	id, updates := s.station.Subscribe()
	defer s.station.Unsubscribe(id)

	if err := s.writeLive(ctx, c, s.station.Status()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := s.writeLive(ctx, c, st); err != nil {
				s.log.Debug().Err(err).Msg("live client gone")
				return
			}
		}
	}
}

func (s *Server) writeLive(ctx context.Context, c *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}

// originHosts turns CORS origins such as http://localhost:5173 into the
// host patterns the websocket handshake matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
