package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/loqalabs/loqa-dictate/internal/session"
	"github.com/nats-io/nats.go"
)

// ServeControl subscribes to SubjectControl and forwards each action to ctrl.
// Requests carrying a reply subject get a ControlReply.
func ServeControl(ctx context.Context, client *Client, ctrl session.Controller) (*nats.Subscription, error) {
	return client.HandleJSON(protocol.SubjectControl, func(data []byte) any {
		reply := handleControl(ctx, ctrl, data)
		if reply.Error != "" {
			client.log.Warn("control request rejected", slog.String("error", reply.Error))
		}
		return reply
	})
}

func handleControl(ctx context.Context, ctrl session.Controller, data []byte) protocol.ControlReply {
	var req protocol.Control
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.ControlReply{State: ctrl.Snapshot().StateName, Error: "invalid control payload"}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	switch req.Action {
	case protocol.ActionToggle:
		err = ctrl.Toggle(ctx)
	case protocol.ActionStart:
		err = ctrl.StartRecording(ctx)
	case protocol.ActionStop:
		err = ctrl.StopRecording(ctx)
	case protocol.ActionRecover:
		err = ctrl.Recover(ctx)
	case protocol.ActionStatus:
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}

	reply := protocol.ControlReply{OK: err == nil, State: ctrl.Snapshot().StateName}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}
