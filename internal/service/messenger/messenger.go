// Package messenger is the client side of the relay: it keeps one websocket
// to the relay, encrypts outgoing text, decrypts and caches incoming
// messages and hands them to a single consumer through a bounded inbox.
package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/identity"
	"e2e_relay/internal/model"
	"e2e_relay/internal/service/cache"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("messenger is not connected")

type (
	Options struct {
		// URL of the relay websocket endpoint, e.g. ws://localhost:9090/ws.
		URL          string
		InboxSize    int
		WriteTimeout time.Duration
	}

	// Entry is one decrypted message, live or from history.
	Entry struct {
		ID            string
		From          string
		To            string
		Text          string
		Time          time.Time
		Status        string
		Undecryptable bool
	}

	// Event reports relay feedback: a messageSent acknowledgment or an error.
	Event struct {
		Kind        string
		ID          string
		To          string
		Description string
	}

	Messenger struct {
		id    *identity.Identity
		keys  *dh.ExchangeKeypair
		cache *cache.Cache
		vault *Vault
		opts  Options

		conn    *websocket.Conn
		writeMu sync.Mutex

		inbox  chan *Entry
		events chan *Event

		stop     chan struct{}
		done     chan struct{}
		stopOnce sync.Once
		err      error

		now func() time.Time
	}
)

func New(id *identity.Identity, c *cache.Cache, opts Options) (*Messenger, error) {
	keys, err := id.Exchange()
	if err != nil {
		return nil, err
	}
	vault, err := NewVault(id)
	if err != nil {
		return nil, err
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Messenger{
		id:     id,
		keys:   keys,
		cache:  c,
		vault:  vault,
		opts:   opts,
		inbox:  make(chan *Entry, opts.InboxSize),
		events: make(chan *Event, opts.InboxSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}, nil
}

func (m *Messenger) ID() string {
	return m.id.ID()
}

// Inbox yields incoming messages in arrival order.
func (m *Messenger) Inbox() <-chan *Entry {
	return m.inbox
}

func (m *Messenger) Events() <-chan *Event {
	return m.events
}

// Done is closed once the connection is gone.
func (m *Messenger) Done() <-chan struct{} {
	return m.done
}

// Err returns why the connection ended, or nil after Close.
func (m *Messenger) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Connect dials the relay and registers the identity. Pending messages start
// arriving on Inbox right after.
func (m *Messenger) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	if err := writeFrame(conn, m.now().Add(m.opts.WriteTimeout), model.EventRegister, &model.RegisterRequest{PublicKey: m.id.ID()}); err != nil {
		conn.Close()
		return fmt.Errorf("register: %w", err)
	}
	m.conn = conn
	log.Info("registered with relay", log.Key("public_key", m.id.ID()), zap.String("url", m.opts.URL))

	go m.readLoop()
	return nil
}

// Close ends the connection and waits for the reader to exit.
func (m *Messenger) Close() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.conn != nil {
			err = m.conn.Close()
		}
	})
	if m.conn != nil {
		<-m.done
	}
	return err
}

// Send encrypts text for to, hands it to the relay and records it locally as
// sent. The returned entry carries the local record id.
func (m *Messenger) Send(ctx context.Context, to, text string) (*Entry, error) {
	if m.conn == nil {
		return nil, ErrNotConnected
	}

	receiver := strings.ToLower(to)
	receiverPub, err := exchangeKey(receiver)
	if err != nil {
		return nil, err
	}

	payload, err := SealPayload(text, &receiverPub, &m.keys.Private)
	if err != nil {
		return nil, err
	}
	if err := m.write(model.EventSendMessage, &model.SendMessageRequest{To: receiver, Payload: payload}); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:     uuid.NewString(),
		From:   m.id.ID(),
		To:     receiver,
		Text:   text,
		Time:   m.now(),
		Status: model.StatusSent,
	}
	if err := m.store(ctx, entry); err != nil {
		return entry, fmt.Errorf("cache sent message: %w", err)
	}
	return entry, nil
}

// History returns the local conversation with counterpart, oldest first.
func (m *Messenger) History(ctx context.Context, counterpart string) ([]*Entry, error) {
	cached, err := m.cache.Messages(ctx, strings.ToLower(counterpart))
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, len(cached))
	for _, c := range cached {
		e := &Entry{
			ID:     c.ID,
			From:   c.SenderID,
			To:     c.ReceiverID,
			Time:   time.UnixMilli(c.Timestamp),
			Status: c.Status,
		}
		text, err := m.vault.Open(c.Text)
		if err != nil {
			e.Text, e.Undecryptable = Undecryptable, true
		} else {
			e.Text = text
			e.Undecryptable = text == Undecryptable
		}
		out = append(out, e)
	}
	return out, nil
}

// ClearHistory forgets the local conversation with counterpart and reports
// how many messages were dropped. Nothing is sent to the relay.
func (m *Messenger) ClearHistory(ctx context.Context, counterpart string) (int, error) {
	if _, err := identity.ParseID(counterpart); err != nil {
		return 0, err
	}
	return m.cache.ClearConversation(ctx, strings.ToLower(counterpart))
}

func (m *Messenger) AddContact(ctx context.Context, id, username string) error {
	if _, err := identity.ParseID(id); err != nil {
		return err
	}
	sealed, err := m.vault.Seal(username)
	if err != nil {
		return err
	}
	return m.cache.AddContact(ctx, &model.Contact{ID: strings.ToLower(id), Username: sealed})
}

func (m *Messenger) Contacts(ctx context.Context) ([]*model.Contact, error) {
	contacts, err := m.cache.Contacts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		name, err := m.vault.Open(c.Username)
		if err != nil {
			name = Undecryptable
		}
		c.Username = name
	}
	return contacts, nil
}

func (m *Messenger) write(event string, data any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return writeFrame(m.conn, m.now().Add(m.opts.WriteTimeout), event, data)
}

func writeFrame(conn *websocket.Conn, deadline time.Time, event string, data any) error {
	frame, err := model.NewFrame(event, data)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(deadline)
	return conn.WriteJSON(frame)
}

func (m *Messenger) readLoop() {
	defer close(m.done)

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			select {
			case <-m.stop:
			default:
				m.err = err
				log.Debug("relay connection closed", zap.Error(err))
			}
			m.conn.Close()
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("malformed frame from relay", zap.Error(err))
			continue
		}
		if !m.handle(&frame) {
			return
		}
	}
}

// handle returns false once the messenger is stopping.
func (m *Messenger) handle(frame *model.Frame) bool {
	switch frame.Event {
	case model.EventMessage:
		var in model.IncomingMessage
		if err := frame.Decode(&in); err != nil {
			log.Warn("malformed message event", zap.Error(err))
			return true
		}
		entry, ok := m.receive(&in)
		if !ok {
			return true
		}
		select {
		case m.inbox <- entry:
			return true
		case <-m.stop:
			return false
		}

	case model.EventMessageSent:
		var ack model.MessageSent
		if err := frame.Decode(&ack); err != nil {
			log.Warn("malformed messageSent event", zap.Error(err))
			return true
		}
		return m.emit(&Event{Kind: model.EventMessageSent, ID: ack.ID, To: ack.To})

	case model.EventError:
		var e model.ErrorEvent
		if err := frame.Decode(&e); err != nil {
			log.Warn("malformed error event", zap.Error(err))
			return true
		}
		return m.emit(&Event{Kind: model.EventError, Description: e.Description})

	default:
		log.Debug("ignore unknown event", zap.String("event", frame.Event))
		return true
	}
}

func (m *Messenger) emit(e *Event) bool {
	select {
	case m.events <- e:
		return true
	case <-m.stop:
		return false
	}
}

// receive decrypts and caches in. It reports false for a message id already
// in the cache.
func (m *Messenger) receive(in *model.IncomingMessage) (*Entry, bool) {
	entry := &Entry{
		ID:     in.ID,
		From:   strings.ToLower(in.From),
		To:     m.id.ID(),
		Time:   m.now(),
		Status: model.StatusReceived,
	}

	text, err := m.open(in)
	if err != nil {
		log.Warn("cannot decrypt message", log.Key("from", in.From), zap.String("id", in.ID), zap.Error(err))
		entry.Text, entry.Undecryptable = Undecryptable, true
	} else {
		entry.Text = text
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.WriteTimeout)
	defer cancel()
	err = m.store(ctx, entry)
	if errors.Is(err, cache.ErrDuplicate) {
		log.Debug("skip duplicate message", zap.String("id", in.ID))
		return nil, false
	}
	if err != nil {
		log.Error("cache received message failed", zap.String("id", in.ID), zap.Error(err))
	}
	return entry, true
}

func (m *Messenger) open(in *model.IncomingMessage) (string, error) {
	senderPub, err := exchangeKey(in.From)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return OpenPayload(in.Payload, &senderPub, &m.keys.Private)
}

func (m *Messenger) store(ctx context.Context, e *Entry) error {
	sealed, err := m.vault.Seal(e.Text)
	if err != nil {
		return err
	}
	return m.cache.AddMessage(ctx, &model.CachedMessage{
		ID:         e.ID,
		SenderID:   e.From,
		ReceiverID: e.To,
		Text:       sealed,
		Timestamp:  e.Time.UnixMilli(),
		Status:     e.Status,
	})
}

func exchangeKey(id string) ([dh.KeySize]byte, error) {
	pub, err := identity.ParseID(id)
	if err != nil {
		return [dh.KeySize]byte{}, err
	}
	return dh.ConvertPublicKey(pub)
}
