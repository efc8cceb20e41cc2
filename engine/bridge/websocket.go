package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Envelope is one websocket frame. Frames with an id are requests and get
// a frame with the same id back.
type Envelope struct {
	ID      string  `json:"id,omitempty"`
	To      string  `json:"to,omitempty"`
	Message Message `json:"message"`
	Reply   any     `json:"reply,omitempty"`
	Outcome string  `json:"outcome,omitempty"`
}

// Peer describes how one websocket joins the hub.
type Peer struct {
	// context the socket speaks as
	Name string
	// destination for frames without a To field
	DefaultTo string
	// register the socket as a listener for Name
	Listen bool
}

// Accept upgrades the request and serves the peer until the socket closes.
// Browser upgrades must come from a host in OriginPatterns; clients that send
// no Origin are accepted.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, peer Peer) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		slog.Error("websocket accept failed", "context", peer.Name, "error", err)
		return
	}
	defer conn.CloseNow()

	if err := h.Serve(r.Context(), conn, peer); err != nil {
		slog.Debug("websocket closed", "context", peer.Name, "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// Serve routes frames read from conn into the hub. When peer.Listen is set,
// messages for peer.Name are written to conn; a failed write unregisters it.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, peer Peer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if peer.Listen {
		unsubscribe := h.Listen(peer.Name, func(_ context.Context, msg Message) (any, error) {
			if ctx.Err() != nil {
				return nil, ErrGone
			}
			if err := wsjson.Write(ctx, conn, Envelope{Message: msg}); err != nil {
				return nil, errors.Join(ErrGone, err)
			}
			return nil, nil
		})
		defer unsubscribe()
	}
	slog.Info("extension context connected", "context", peer.Name)

	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return err
		}

		to := env.To
		if to == "" {
			to = peer.DefaultTo
		}
		if env.ID == "" {
			h.Send(ctx, to, env.Message)
			continue
		}

		reply, outcome := h.Request(ctx, to, env.Message)
		resp := Envelope{ID: env.ID, To: peer.Name, Reply: reply, Outcome: outcome.String()}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			return err
		}
	}
}
