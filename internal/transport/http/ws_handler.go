package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
)

const defaultTick = time.Second

// SessionGauge tracks connected sessions. *metrics.Metrics satisfies it.
type SessionGauge interface {
	SessionOpened()
	SessionClosed()
}

type nopGauge struct{}

func (nopGauge) SessionOpened() {}
func (nopGauge) SessionClosed() {}

// WSHandler drives one quiz session per websocket connection.
type WSHandler struct {
	service  *app.QuizService
	log      logrus.FieldLogger
	gauge    SessionGauge
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log logrus.FieldLogger, gauge SessionGauge, tick time.Duration) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gauge == nil {
		gauge = nopGauge{}
	}
	if tick <= 0 {
		tick = defaultTick
	}
	return &WSHandler{
		service: service,
		log:     log,
		gauge:   gauge,
		tick:    tick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Topic   string   `json:"topic"`
	Context []string `json:"context"`
}

type loadPayload struct {
	Limit int `json:"limit"`
}

type answerPayload struct {
	Option int `json:"option"`
}

type exportPayload struct {
	Format string `json:"format"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type exportResult struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

// ServeWS upgrades the request and runs a quiz session until the client
// disconnects. An optional topic query parameter starts the quiz right away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	session := h.service.NewSession()
	log := h.log.WithField("session", session.ID())
	updates, unsubscribe := session.Subscribe()
	defer h.service.Release(session.ID())
	defer unsubscribe()
	h.gauge.SessionOpened()
	defer h.gauge.SessionClosed()
	log.Info("ws session opened")

	send := make(chan outboundMessage[any], 16)
	inbound := make(chan inboundMessage, 8)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				// keep draining so producers never block on a dead connection
				for range send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if !h.forward(update, send, closeSignals) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	go func() {
		defer close(inbound)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case inbound <- msg:
			case <-closeSignals:
				return
			}
		}
	}()

	// acquiring calls run off the loop so reset and restart can supersede
	// them while they wait on the generator
	var pending sync.WaitGroup
	async := func(op func() error) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			h.reply(send, log, op())
		}()
	}

	if topic := r.URL.Query().Get("topic"); topic != "" {
		async(func() error { return h.start(ctx, session, startPayload{Topic: topic}) })
	}

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	var ticking atomic.Bool

loop:
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				break loop
			}
			h.handle(ctx, session, msg, send, log, async)
		case now := <-ticker.C:
			if !ticking.CompareAndSwap(false, true) {
				continue
			}
			async(func() error {
				defer ticking.Store(false)
				fired, err := session.Tick(ctx, now)
				if err == nil && !fired && session.Phase() == domain.PhaseInProgress {
					send <- outboundMessage[any]{Type: "state", Payload: session.Snapshot()}
				}
				return err
			})
		}
	}

	close(closeSignals)
	cancelCtx()
	pending.Wait()
	<-updatesDone
	close(send)
	<-writerDone
	log.Info("ws session closed")
}

// handle serves one client message. Calls that may wait on the generator or
// the store are handed to async.
func (h *WSHandler) handle(ctx context.Context, session *app.Session, msg inboundMessage, send chan<- outboundMessage[any], log logrus.FieldLogger, async func(func() error)) {
	var err error
	switch msg.Type {
	case "start", "restart":
		var p startPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			sendError(send, "invalid start payload")
			return
		}
		if msg.Type == "restart" {
			if p.Topic == "" {
				p.Topic = session.Snapshot().Topic
			}
			async(func() error { return session.Restart(ctx, p.Topic, p.Context) })
		} else {
			async(func() error { return h.start(ctx, session, p) })
		}
		return
	case "load":
		var p loadPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			sendError(send, "invalid load payload")
			return
		}
		if p.Limit <= 0 {
			p.Limit = h.service.Options().QuestionLimit
		}
		async(func() error { return session.LoadRandom(ctx, p.Limit) })
		return
	case "answer":
		var p answerPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			sendError(send, "invalid answer payload")
			return
		}
		_, err = session.SubmitAnswer(p.Option)
	case "next":
		async(func() error { return session.Advance(ctx) })
		return
	case "prev":
		err = session.Retreat()
	case "reset":
		session.Reset()
	case "export":
		var p exportPayload
		_ = decodePayload(msg.Payload, &p)
		format, ferr := app.ParseExportFormat(p.Format)
		if ferr != nil {
			sendError(send, ferr.Error())
			return
		}
		data, eerr := session.Export(format)
		if eerr != nil {
			err = eerr
			break
		}
		send <- outboundMessage[any]{Type: "export", Payload: exportResult{Format: string(format), Data: string(data)}}
	default:
		sendError(send, "unsupported message type")
		return
	}
	h.reply(send, log, err)
}

func (h *WSHandler) start(ctx context.Context, session *app.Session, p startPayload) error {
	if p.Topic == "" {
		return errors.New("topic is required")
	}
	return session.Start(ctx, p.Topic, p.Context)
}

// reply reports err to the client. Superseded results are dropped; invariant
// violations get a generic message since they indicate a client bug.
func (h *WSHandler) reply(send chan<- outboundMessage[any], log logrus.FieldLogger, err error) {
	switch {
	case err == nil, errors.Is(err, domain.ErrSuperseded):
		return
	case errors.Is(err, domain.ErrInvariant):
		log.WithError(err).Debug("rejected ws request")
		sendError(send, "request not allowed in the current state")
	default:
		sendError(send, err.Error())
	}
}

func (h *WSHandler) forward(update domain.Update, send chan<- outboundMessage[any], done <-chan struct{}) bool {
	msgs := []outboundMessage[any]{{Type: "state", Payload: update.Snapshot}}
	if update.Notice != "" {
		msgs = append(msgs, outboundMessage[any]{Type: "notice", Payload: messagePayload{Message: update.Notice}})
	}
	for _, m := range msgs {
		select {
		case send <- m:
		case <-done:
			return false
		}
	}
	return true
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func sendError(send chan<- outboundMessage[any], message string) {
	send <- outboundMessage[any]{Type: "error", Payload: messagePayload{Message: message}}
}
