package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/babel/internal/core"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when it returns the participant
// goes offline.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, roomID domain.RoomID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		ctl.limiters.Remove(sid)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
			ctl.handleSignal(sid, roomID, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, roomID domain.RoomID, data []byte) {
	if !ctl.limiters.Allow(sid) {
		ctl.reject(sid, "", domain.ErrRateLimited)
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.reject(sid, "", domain.Errorf(domain.KindProtocol, "malformed JSON"))
		return
	}

	var err error
	switch env.Type {
	case protocol.TypeJoinConference:
		err = ctl.handleJoin(sid, roomID, data)
	case protocol.TypeVoiceMessage:
		err = ctl.handleVoice(sid, data)
	case protocol.TypeTextMessage:
		err = ctl.handleText(sid, data)
	case protocol.TypeTranslationReq:
		err = ctl.handleTranslationRequest(sid, data)
	case protocol.TypePing:
		ctl.handlePing(sid)
	case protocol.TypeTyping:
		err = ctl.handleTyping(sid, data)
	case protocol.TypeChangeLanguage:
		err = ctl.handleChangeLanguage(sid, data)
	case protocol.TypeOffer:
		err = ctl.handleOffer(sid, data)
	case protocol.TypeAnswer:
		err = ctl.handleAnswer(sid, data)
	case protocol.TypeCandidate:
		err = ctl.handleCandidate(sid, data)
	default:
		err = domain.Errorf(domain.KindProtocol, "unknown message type %q", env.Type)
	}
	if err != nil {
		ctl.reject(sid, env.Type, err)
	}
}

// decode unmarshals a typed payload; failures are protocol errors.
func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return domain.ErrProtocol.WithCause(err)
	}
	return nil
}

// reject reports err to the sender only. The connection stays open.
func (ctl *SignalWSController) reject(sid core.SessionID, typ string, err error) {
	kind, _ := domain.Public(err)
	ev := log.Debug()
	var de *domain.Error
	if !errors.As(err, &de) {
		ev = log.Error()
	}
	ev.Str("module", "signal").Str("sid", string(sid)).Str("type", typ).Err(err).Msg("message rejected")
	ctl.Orch.Metrics.Rejected(string(kind))
	ctl.Orch.Send(sid, protocol.ErrorOf(err))
}
