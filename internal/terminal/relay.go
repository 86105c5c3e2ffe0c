package terminal

import (
	"github.com/gorilla/websocket"

	"github.com/Bitsy-Chuck/pomodex/internal/log"
)

// relay runs the two concurrent forwarding directions for one
// connection and returns once either side ends, after cancelling the
// other. Returns a label for the close reason, used only for metrics.
func (g *Gateway) relay(client, ttyd *websocket.Conn, projectID, userID string) string {
	type outcome struct {
		side   string
		reason string
	}
	done := make(chan outcome, 2)

	go func() {
		reason := forward(client, ttyd, func(mt int, data []byte) {
			if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
				g.audit.LogInput(projectID, userID, data)
			}
		})
		done <- outcome{side: "client", reason: reason}
	}()

	go func() {
		reason := forward(ttyd, client, nil)
		done <- outcome{side: "ttyd", reason: reason}
	}()

	first := <-done
	_ = client.Close()
	_ = ttyd.Close()
	// Drain the second goroutine so it doesn't leak once its socket
	// read returns an error from the close above.
	<-done

	log.WithProject(projectID, userID).Info().
		Str("ended_by", first.side).
		Str("reason", first.reason).
		Msg("terminal relay ended")
	return "relay_ended_" + first.side
}

// forward copies messages from src to dst verbatim (binary stays
// binary, text stays text) until src's connection ends. onMessage, if
// non-nil, observes every forwarded message before it is sent on.
func forward(src, dst *websocket.Conn, onMessage func(messageType int, data []byte)) string {
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			return closeReason(err)
		}
		if onMessage != nil {
			onMessage(mt, data)
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			return closeReason(err)
		}
	}
}

func closeReason(err error) string {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Text
	}
	return err.Error()
}
