package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yanun0323/logs"

	"signaltrack/internal/hub"
	"signaltrack/internal/model"
	"signaltrack/pkg/exception"
	"signaltrack/pkg/websocket"
)

// handleWS streams price samples to a websocket client.
// /ws/{symbol} narrows the stream to one instrument and makes sure the feed tracks it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var instruments []model.Instrument
	if symbol := r.PathValue("symbol"); symbol != "" {
		ins, err := model.NormalizeInstrument(symbol)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		instruments = append(instruments, ins)
		if s.cfg.Feed != nil {
			if err := s.cfg.Feed.AddInstrument(r.Context(), ins); err != nil {
				logs.Warnf("api: add instrument %s, err: %+v", ins, err)
			}
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("api: websocket upgrade, err: %+v", err)
		return
	}
	conn := websocket.NewConn(ws, websocket.ConnConfig{
		IdleTimeout:  s.cfg.IdleTimeout,
		PingInterval: s.cfg.PingInterval,
	})
	defer conn.Close()

	sub := hub.NewSubscriber(s.cfg.BufferSize, s.cfg.Overflow, instruments...)
	handle := s.cfg.Hub.Register(sub)
	defer s.cfg.Hub.Unregister(handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Client frames are discarded; a read error means the client is gone.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				s.cfg.Hub.Unregister(handle)
				return
			}
		}
	}()

	for {
		sample, ok := sub.Next()
		if !ok {
			if err := sub.Err(); errors.Is(err, exception.ErrSubscriberOverflow) {
				logs.Warnf("api: websocket subscriber %s dropped, err: %+v", handle, err)
			}
			return
		}
		payload, err := json.Marshal(sample)
		if err != nil {
			logs.Errorf("api: marshal sample %s, err: %+v", sample.Instrument, err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			logs.Debugf("api: websocket write, subscriber: %s, err: %+v", handle, err)
			return
		}
	}
}
