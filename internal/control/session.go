package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/k1ln/synflow-sub000/internal/bus"
	"github.com/k1ln/synflow-sub000/internal/ctxlog"
	"github.com/k1ln/synflow-sub000/internal/patch"
	"github.com/k1ln/synflow-sub000/internal/vnode"
)

// message is one editor request. Op selects the shape:
//
//	{"op":"apply","patch":{"nodes":[...],"edges":[...]}}
//	{"op":"updateParams","node":"osc1","data":{"frequency":220}}
//	{"op":"emit","topic":"env1.trigger.receiveNodeOn"}
//	{"op":"emit","topic":"fx1.input-0.receiveNodeOn","value":3.5}
type message struct {
	Op    string         `json:"op"`
	Topic string         `json:"topic,omitempty"`
	Value *float64       `json:"value,omitempty"`
	Node  string         `json:"node,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Patch *patch.Patch   `json:"patch,omitempty"`
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// session is one connected editor. Requests are decoded on the session's
// read goroutine and handed to the run loop one at a time; the ack is sent
// after the loop has processed the request.
type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
}

func newSession(s *Server, conn *websocket.Conn) *session {
	return &session{id: uuid.NewString(), server: s, conn: conn}
}

func (s *session) readLoop(ctx context.Context) {
	ctx = ctxlog.With(ctx, "session", s.id)
	logger := ctxlog.FromContext(ctx)
	defer s.conn.Close()

	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Editor session dropped.", "error", err)
			} else {
				logger.Info("Editor session closed.")
			}
			return
		}

		if err := s.dispatch(ctx, msg); err != nil {
			logger.Warn("Control request failed.", "op", msg.Op, "error", err)
			s.send(reply{OK: false, Error: err.Error()})
			continue
		}
		s.send(reply{OK: true})
	}
}

func (s *session) send(r reply) {
	// Write errors surface on the next read; nothing to do here.
	_ = s.conn.WriteJSON(r)
}

func (s *session) dispatch(ctx context.Context, msg message) error {
	switch msg.Op {
	case "apply":
		if msg.Patch == nil {
			return fmt.Errorf("apply requires a patch")
		}
		if err := msg.Patch.Validate(); err != nil {
			return fmt.Errorf("invalid patch: %w", err)
		}
		return s.server.loop.Do(ctx, func(ctx context.Context) error {
			s.server.mgr.Apply(ctx, *msg.Patch)
			return nil
		})

	case "updateParams":
		if msg.Node == "" || len(msg.Data) == 0 {
			return fmt.Errorf("updateParams requires node and data")
		}
		data := normalizeNumbers(msg.Data)
		return s.server.loop.Do(ctx, func(ctx context.Context) error {
			if _, ok := s.server.mgr.Instance(msg.Node); !ok {
				return fmt.Errorf("node %q does not exist", msg.Node)
			}
			s.server.bus.Emit(ctx, bus.ParamsTopic(msg.Node), &vnode.ParamsUpdate{Data: data})
			return nil
		})

	case "emit":
		topic, err := bus.ParseTopic(msg.Topic)
		if err != nil {
			return err
		}
		var payload any = vnode.Trigger{Source: "session." + s.id}
		if msg.Value != nil {
			payload = *msg.Value
		}
		return s.server.loop.Do(ctx, func(ctx context.Context) error {
			s.server.bus.Emit(ctx, topic, payload)
			return nil
		})

	default:
		return fmt.Errorf("unknown op %q", msg.Op)
	}
}

// normalizeNumbers rebuilds the bag with plain float64 numbers. JSON decodes
// all numbers that way already; this guards nested structures and keeps the
// bag shape identical to the HCL loader's output.
func normalizeNumbers(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case json.Number:
			if f, err := val.Float64(); err == nil {
				out[k] = f
			} else {
				out[k] = val.String()
			}
		case map[string]any:
			out[k] = normalizeNumbers(val)
		default:
			out[k] = v
		}
	}
	return out
}
