// Package relay routes opaque payloads between identities. A message for an
// online identity is pushed at once; otherwise it stays pending in the store
// and is replayed the next time the identity registers.
//
// "Delivered" means the relay handed the message to a connection that looked
// open. There is no client acknowledgment, so a connection that drops right
// after the push can lose a message the relay has already marked delivered.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/presence"
	"e2e_relay/internal/repository/message"
	"e2e_relay/internal/repository/user"
	"e2e_relay/internal/utils/log"
	"e2e_relay/internal/utils/ratelimiter"

	"go.uber.org/zap"
)

// Conn is a live transport connection.
type Conn interface {
	ID() string
	// Push queues frame for writing. It blocks while the queue is full and
	// fails once ctx ends or the connection is closed.
	Push(ctx context.Context, frame *model.Frame) error
	// Close tears the transport down. The owner still reports OnDisconnect.
	Close()
}

const defaultPushTimeout = 10 * time.Second

type Options struct {
	// MaxPayloadBytes caps sendMessage payloads; zero disables the cap.
	MaxPayloadBytes int
	SendRPS         float64
	SendBurst       int
	// PushTimeout bounds how long one push waits for queue room before the
	// connection is dropped.
	PushTimeout time.Duration
}

type Relay struct {
	registry *presence.Registry
	messages message.Store
	users    user.Repository
	metrics  *Metrics
	limiter  *ratelimiter.KeyedLimiter
	opts     Options

	connMu sync.RWMutex
	conns  map[string]Conn

	// per-receiver: register-replay and send-push never interleave
	receivers *keyedMutex
	now       func() time.Time
}

func New(registry *presence.Registry, messages message.Store, users user.Repository, metrics *Metrics, opts Options) *Relay {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = defaultPushTimeout
	}
	return &Relay{
		registry:  registry,
		messages:  messages,
		users:     users,
		metrics:   metrics,
		limiter:   ratelimiter.New(opts.SendRPS, opts.SendBurst),
		opts:      opts,
		conns:     make(map[string]Conn),
		receivers: newKeyedMutex(),
		now:       time.Now,
	}
}

// OnConnect makes conn reachable for pushes once it registers.
func (r *Relay) OnConnect(conn Conn) {
	r.connMu.Lock()
	r.conns[conn.ID()] = conn
	r.connMu.Unlock()
	log.Debug("connection opened", zap.String("conn", conn.ID()))
}

// OnRegister binds connID to publicKey and replays everything pending for
// that identity, oldest first. Only the messages whose push succeeded are
// marked delivered. A failed push drops the connection, so the rest wait for
// the next registration instead of being overtaken by newer sends.
func (r *Relay) OnRegister(ctx context.Context, connID, publicKey string) (int, error) {
	n, err := r.register(ctx, connID, publicKey)
	if err != nil {
		r.metrics.Errors.WithLabelValues(errorKind(err)).Inc()
	}
	return n, err
}

func (r *Relay) register(ctx context.Context, connID, publicKey string) (int, error) {
	pk, err := NormalizeIdentity(publicKey)
	if err != nil {
		return 0, err
	}
	conn, ok := r.conn(connID)
	if !ok {
		return 0, ErrUnknownConnection
	}

	if _, err := r.users.FindOrCreate(ctx, pk); err != nil {
		return 0, fmt.Errorf("register %s: %w", connID, err)
	}

	unlock := r.receivers.Lock(pk)
	defer unlock()

	if superseded := r.registry.Register(connID, pk); superseded != "" {
		log.Info("identity moved to a new connection",
			log.Key("public_key", pk),
			zap.String("old_conn", superseded),
			zap.String("conn", connID))
	}
	r.metrics.OnlineIdentities.Set(float64(r.registry.Len()))
	log.Info("user registered", log.Key("public_key", pk), zap.String("conn", connID))

	pending, err := r.messages.FetchPending(ctx, pk)
	if err != nil {
		return 0, fmt.Errorf("fetch pending for %s: %w", connID, err)
	}

	pushed := make([]string, 0, len(pending))
	for _, m := range pending {
		if err := r.push(ctx, conn, m); err != nil {
			log.Warn("replay interrupted",
				log.Key("public_key", pk),
				zap.Int("pushed", len(pushed)),
				zap.Int("pending", len(pending)),
				zap.Error(err))
			r.evict(conn)
			break
		}
		pushed = append(pushed, m.ID)
	}

	if err := r.markDelivered(ctx, pushed); err != nil {
		return 0, fmt.Errorf("mark replayed delivered: %w", err)
	}
	r.metrics.MessagesDelivered.WithLabelValues(pathReplay).Add(float64(len(pushed)))
	return len(pushed), nil
}

// OnSend stores a payload from the identity bound to connID and pushes it to
// the receiver if that identity is online. The acknowledgment is returned
// whether or not the push happened.
func (r *Relay) OnSend(ctx context.Context, connID, to, payload string) (*model.MessageSent, error) {
	ack, err := r.send(ctx, connID, to, payload)
	if err != nil {
		r.metrics.Errors.WithLabelValues(errorKind(err)).Inc()
	}
	return ack, err
}

func (r *Relay) send(ctx context.Context, connID, to, payload string) (*model.MessageSent, error) {
	receiver, err := NormalizeIdentity(to)
	if err != nil {
		return nil, err
	}
	sender, ok := r.registry.LookupIdentity(connID)
	if !ok {
		return nil, ErrNotRegistered
	}
	if r.opts.MaxPayloadBytes > 0 && len(payload) > r.opts.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	if !r.limiter.Allow(connID, r.now()) {
		return nil, ErrRateLimited
	}

	if _, err := r.users.FindOrCreate(ctx, sender); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if _, err := r.users.FindOrCreate(ctx, receiver); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	unlock := r.receivers.Lock(receiver)
	defer unlock()

	m, err := r.messages.Create(ctx, sender, receiver, payload)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	r.metrics.MessagesStored.Inc()

	ack := &model.MessageSent{ID: m.ID, To: receiver}

	conn, online := r.receiverConn(receiver)
	if !online {
		log.Debug("receiver offline, message stored", log.Key("to", receiver), zap.String("id", m.ID))
		return ack, nil
	}

	if err := r.push(ctx, conn, m); err != nil {
		// stays pending and goes out with the next replay
		log.Warn("immediate push failed", log.Key("to", receiver), zap.String("id", m.ID), zap.Error(err))
		r.evict(conn)
		return ack, nil
	}
	if err := r.markDelivered(ctx, []string{m.ID}); err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	r.metrics.MessagesDelivered.WithLabelValues(pathImmediate).Inc()
	return ack, nil
}

// OnDisconnect forgets connID. Message state is untouched.
func (r *Relay) OnDisconnect(connID string) {
	r.connMu.Lock()
	delete(r.conns, connID)
	r.connMu.Unlock()

	r.limiter.Forget(connID)
	if pk, ok := r.registry.Unregister(connID); ok {
		log.Info("user disconnected", log.Key("public_key", pk), zap.String("conn", connID))
	}
	r.metrics.OnlineIdentities.Set(float64(r.registry.Len()))
}

// evict unbinds conn and closes it so the client reconnects and gets a full
// replay. Callers hold the receiver lock.
func (r *Relay) evict(conn Conn) {
	r.OnDisconnect(conn.ID())
	conn.Close()
}

// IsOnline accepts identities in any hex case.
func (r *Relay) IsOnline(publicKey string) (bool, error) {
	pk, err := NormalizeIdentity(publicKey)
	if err != nil {
		return false, err
	}
	return r.registry.IsOnline(pk), nil
}

func (r *Relay) conn(connID string) (Conn, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

func (r *Relay) receiverConn(publicKey string) (Conn, bool) {
	connID, ok := r.registry.LookupConnection(publicKey)
	if !ok {
		return nil, false
	}
	return r.conn(connID)
}

func (r *Relay) push(ctx context.Context, conn Conn, m *model.Message) error {
	frame, err := model.NewFrame(model.EventMessage, &model.IncomingMessage{
		From:    m.SenderID,
		Payload: m.Payload,
		ID:      m.ID,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.PushTimeout)
	defer cancel()
	return conn.Push(ctx, frame)
}

// markDelivered ignores cancellation of ctx; a pushed message must not stay
// pending because the operation deadline passed while pushing.
func (r *Relay) markDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.PushTimeout)
	defer cancel()
	return r.messages.MarkDelivered(ctx, ids)
}
