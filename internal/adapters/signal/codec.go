package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var ErrBadFrame = errors.New("bad signaling frame")

// Codec turns events into websocket frames and back.
type Codec interface {
	Name() string
	// MessageType is the websocket frame type the codec writes.
	MessageType() int
	Encode(e domain.Event) (core.Frame, error)
	Decode(f core.Frame) (domain.Event, error)
}

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown signal codec %q", name)
}

type JSONCodec struct{}

func (JSONCodec) Name() string     { return "json" }
func (JSONCodec) MessageType() int { return websocket.TextMessage }

func (JSONCodec) Encode(e domain.Event) (core.Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return b, nil
}

func (JSONCodec) Decode(f core.Frame) (domain.Event, error) {
	var e domain.Event
	if err := json.Unmarshal(f, &e); err != nil {
		return e, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return e, validate(e)
}

type MsgpackCodec struct{}

func (MsgpackCodec) Name() string     { return "msgpack" }
func (MsgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(e domain.Event) (core.Frame, error) {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return b, nil
}

func (MsgpackCodec) Decode(f core.Frame) (domain.Event, error) {
	var e domain.Event
	if err := msgpack.Unmarshal(f, &e); err != nil {
		return e, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return e, validate(e)
}

func validate(e domain.Event) error {
	if e.Type == "" || e.From == "" {
		return fmt.Errorf("%w: missing type or fromId", ErrBadFrame)
	}
	return nil
}
