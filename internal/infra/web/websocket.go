package web

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsRequestTimeout = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsRequest is the single message a client sends after connecting.
type wsRequest struct {
	AudioBase64 string `json:"audio_base64"`
	AudioName   string `json:"audio_name"`
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageName   string `json:"image_name,omitempty"`
}

type wsEvent struct {
	Type     string       `json:"type"`
	Fraction float64      `json:"fraction,omitempty"`
	Message  string       `json:"message,omitempty"`
	Result   *askResponse `json:"result,omitempty"`
}

func (s *Server) handleAskWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// base64 inflates uploads by a third
	conn.SetReadLimit(s.maxUpload*4/3 + 4096)
	conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))

	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn("reading websocket request", "error", err)
		s.sendEvent(conn, wsEvent{Type: "error", Message: "invalid request"})
		return
	}
	conn.SetReadDeadline(time.Time{})

	audio, image, err := decodeWSRequest(req)
	if err != nil {
		s.sendEvent(conn, wsEvent{Type: "error", Message: err.Error()})
		return
	}

	q, err := s.prepare(*audio, image)
	if err != nil {
		s.logger.Error("storing upload", "error", err)
		s.sendEvent(conn, wsEvent{Type: "error", Message: "failed to store upload"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// a read error means the client went away
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	progress := func(fraction float64, desc string) {
		s.sendEvent(conn, wsEvent{Type: "progress", Fraction: fraction, Message: desc})
	}

	answered, err := s.asker.Handle(ctx, q, progress)
	if err != nil {
		s.logger.Error("answering question", "question_id", q.ID, "error", err)
		s.sendEvent(conn, wsEvent{Type: "error", Message: "failed to answer question"})
		return
	}

	result := newAskResponse(answered)
	s.sendEvent(conn, wsEvent{Type: "result", Result: &result})

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func decodeWSRequest(req wsRequest) (*upload, *upload, error) {
	if req.AudioBase64 == "" {
		return nil, nil, fmt.Errorf("missing audio")
	}

	audioData, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil || len(audioData) == 0 {
		return nil, nil, fmt.Errorf("invalid audio encoding")
	}
	audio := &upload{name: req.AudioName, data: audioData}

	if req.ImageBase64 == "" {
		return audio, nil, nil
	}

	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid image encoding")
	}
	return audio, &upload{name: req.ImageName, data: imageData}, nil
}

func (s *Server) sendEvent(conn *websocket.Conn, event wsEvent) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(event); err != nil {
		s.logger.Debug("writing websocket event", "type", event.Type, "error", err)
	}
}
