package model

import "encoding/json"

const (
	EventRegister    = "register"
	EventSendMessage = "sendMessage"
	EventMessage     = "message"
	EventMessageSent = "messageSent"
	EventError       = "error"
)

type (
	// Frame is one websocket text message: an event name and its body.
	Frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}

	RegisterRequest struct {
		PublicKey string `json:"publicKey"`
	}

	SendMessageRequest struct {
		To      string `json:"to"`
		Payload string `json:"payload"`
	}

	IncomingMessage struct {
		From    string `json:"from"`
		Payload string `json:"payload"`
		ID      string `json:"id"`
	}

	MessageSent struct {
		ID string `json:"id"`
		To string `json:"to"`
	}

	ErrorEvent struct {
		Description string `json:"description"`
	}
)

func NewFrame(event string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{Event: event, Data: raw}, nil
}

// Decode unmarshals the frame body into v.
func (f *Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(f.Data, v)
}
