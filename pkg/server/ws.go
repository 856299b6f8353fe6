package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ffneuron/neuron/pkg/models"
)

// Debate socket message types.
const (
	msgDebateState = "debate_state"
	msgNewTurn     = "new_turn"
	msgConclusion  = "conclusion"
	msgError       = "error"
)

// Debate socket commands.
const (
	cmdContinue = "continue"
	cmdConclude = "conclude"
	cmdEnd      = "end"
)

const (
	maxSocketMessage = 64 * 1024
	socketPongWait   = 60 * time.Second
	socketPingEvery  = 30 * time.Second
	socketWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type socketCommand struct {
	Type     string `json:"type"`
	NumTurns int    `json:"num_turns"`
}

type socketMessage struct {
	Type    string          `json:"type"`
	Debate  *debateResponse `json:"debate,omitempty"`
	Turn    *models.Turn    `json:"turn,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    int             `json:"code,omitempty"`
}

// debateSocket drives one debate over a websocket connection. Only the read
// loop writes data frames; pings go through WriteControl.
type debateSocket struct {
	conn    *websocket.Conn
	debates Debates
	id      string
}

func (s *Server) handleDebateSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	ds := &debateSocket{conn: conn, debates: s.deps.Debates, id: r.PathValue("id")}
	ds.run(r.Context())
}

func (ds *debateSocket) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ds.conn.Close()

	d, err := ds.debates.Get(ds.id)
	if err != nil {
		ds.sendError(err)
		ds.close(websocket.ClosePolicyViolation, "debate not found")
		return
	}
	if err := ds.send(socketMessage{Type: msgDebateState, Debate: newDebateResponse(d)}); err != nil {
		return
	}

	go ds.ping(ctx)

	ds.conn.SetReadLimit(maxSocketMessage)
	ds.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	ds.conn.SetPongHandler(func(string) error {
		return ds.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	for {
		var cmd socketCommand
		if err := ds.conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if ds.send(socketMessage{Type: msgError, Message: "invalid command", Code: http.StatusBadRequest}) != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("debate socket read error", "debate", ds.id, "error", err)
			}
			return
		}
		ds.conn.SetReadDeadline(time.Now().Add(socketPongWait))

		switch cmd.Type {
		case cmdContinue:
			err = ds.continueDebate(ctx, cmd.NumTurns)
		case cmdConclude:
			err = ds.conclude(ctx)
		case cmdEnd:
			ds.close(websocket.CloseNormalClosure, "")
			return
		default:
			err = ds.send(socketMessage{Type: msgError, Message: "unknown command " + cmd.Type, Code: http.StatusBadRequest})
		}
		if err != nil {
			slog.Debug("debate socket closed", "debate", ds.id, "error", err)
			return
		}
	}
}

// continueDebate sends each new turn in order. Service errors are reported
// on the socket and keep it open; only write failures are returned.
func (ds *debateSocket) continueDebate(ctx context.Context, n int) error {
	before, err := ds.debates.Get(ds.id)
	if err != nil {
		return ds.sendError(err)
	}
	d, err := ds.debates.Continue(ctx, ds.id, n)
	if err != nil {
		return ds.sendError(err)
	}
	for i := len(before.Turns); i < len(d.Turns); i++ {
		if err := ds.send(socketMessage{Type: msgNewTurn, Turn: &d.Turns[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (ds *debateSocket) conclude(ctx context.Context) error {
	d, err := ds.debates.Conclude(ctx, ds.id)
	if err != nil {
		return ds.sendError(err)
	}
	return ds.send(socketMessage{
		Type:   msgConclusion,
		Turn:   &d.Turns[len(d.Turns)-1],
		Debate: newDebateResponse(d),
	})
}

func (ds *debateSocket) sendError(err error) error {
	code := statusFor(err)
	if code >= 500 {
		slog.Error("debate socket command failed", "debate", ds.id, "error", err)
	}
	return ds.send(socketMessage{Type: msgError, Message: err.Error(), Code: code})
}

func (ds *debateSocket) send(m socketMessage) error {
	ds.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return ds.conn.WriteJSON(m)
}

func (ds *debateSocket) close(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ds.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(socketWriteWait))
}

func (ds *debateSocket) ping(ctx context.Context) {
	ticker := time.NewTicker(socketPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ds.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
		}
	}
}

func newDebateResponse(d *models.Debate) *debateResponse {
	return &debateResponse{Debate: d, TotalCost: d.TotalCost(), TotalDurationMs: d.TotalDurationMs()}
}
