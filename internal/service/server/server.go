package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/relay"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type (
	Options struct {
		Addr          string
		QueueSize     int
		WriteTimeout  time.Duration
		OpTimeout     time.Duration
		MaxFrameBytes int64
		// Gatherer backs /metrics; nil disables the endpoint.
		Gatherer prometheus.Gatherer
	}

	HttpServer struct {
		relay  *relay.Relay
		opts   Options
		router *mux.Router
		srv    *http.Server

		// hijacked websockets are invisible to http.Server.Shutdown
		connMu  sync.Mutex
		conns   map[string]*wsConn
		pumps   sync.WaitGroup
		closing bool
	}
)

func NewHttpServer(r *relay.Relay, opts Options) *HttpServer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}

	s := &HttpServer{
		relay:  r,
		opts:   opts,
		router: mux.NewRouter(),
		conns:  make(map[string]*wsConn),
	}

	s.router.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.HandleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/online/{publicKey}", s.HandleOnline()).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HttpServer) Handler() http.Handler {
	return s.router
}

// Run blocks until the listener fails or Shutdown is called.
func (s *HttpServer) Run() error {
	log.Info("relay listening", zap.String("addr", s.opts.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener, closes every websocket and waits for their
// read loops to finish so no relay operation outlives the call.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.closeConns()

	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

func (s *HttpServer) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.closing = true
	for _, c := range s.conns {
		c.Close()
	}
	if len(s.conns) > 0 {
		log.Info("closing web sockets", zap.Int("count", len(s.conns)))
	}
}

// track reports false once Shutdown has begun.
func (s *HttpServer) track(c *wsConn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closing {
		return false
	}
	s.conns[c.id] = c
	s.pumps.Add(1)
	return true
}

func (s *HttpServer) untrack(c *wsConn) {
	s.connMu.Lock()
	delete(s.conns, c.id)
	s.connMu.Unlock()
	s.pumps.Done()
}

func (s *HttpServer) HandleWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		if s.opts.MaxFrameBytes > 0 {
			conn.SetReadLimit(s.opts.MaxFrameBytes)
		}

		c := newWSConn(uuid.NewString(), conn, s.opts.QueueSize, s.opts.WriteTimeout)
		if !s.track(c) {
			conn.Close()
			return
		}
		s.relay.OnConnect(c)

		go c.writePump()
		go s.readPump(c)
	}
}

func (s *HttpServer) readPump(c *wsConn) {
	defer func() {
		s.relay.OnDisconnect(c.id)
		c.Close()
		s.untrack(c)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("web socket closed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.pushError("malformed frame")
			continue
		}
		s.dispatch(c, &frame)
	}
}

func (s *HttpServer) dispatch(c *wsConn, frame *model.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
	defer cancel()

	switch frame.Event {
	case model.EventRegister:
		var req model.RegisterRequest
		if err := frame.Decode(&req); err != nil {
			c.pushError("malformed register request")
			return
		}
		if _, err := s.relay.OnRegister(ctx, c.id, req.PublicKey); err != nil {
			c.pushError(describe(err, "Registration failed"))
		}

	case model.EventSendMessage:
		var req model.SendMessageRequest
		if err := frame.Decode(&req); err != nil {
			c.pushError("malformed sendMessage request")
			return
		}
		ack, err := s.relay.OnSend(ctx, c.id, req.To, req.Payload)
		if err != nil {
			c.pushError(describe(err, "Failed to send message"))
			return
		}
		c.pushEvent(model.EventMessageSent, ack)

	default:
		c.pushError("unknown event: " + frame.Event)
	}
}

// describe hides internal causes from the client and logs them instead.
func describe(err error, internal string) string {
	if relay.IsClientError(err) {
		return err.Error()
	}
	log.Error(internal, zap.Error(err))
	return internal
}

func (s *HttpServer) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func (s *HttpServer) HandleOnline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online, err := s.relay.IsOnline(mux.Vars(r)["publicKey"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := json.Marshal(map[string]bool{"online": online})
		if err != nil {
			http.Error(w, "encode response failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
