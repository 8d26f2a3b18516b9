package protocol

import (
	"fmt"

	"mini-bidi/message"
)

type CodecType byte

const (
	CodecTypeJSON     CodecType = 0
	CodecTypeEasyJSON CodecType = 1
)

func (t CodecType) String() string {
	if t == CodecTypeEasyJSON {
		return "easyjson"
	}
	return "json"
}

// Codec turns commands into wire text and wire text into inbound envelopes.
//
// Decode classifies with Peek first. When the header was readable but the
// body was not, the error is a *MessageError carrying that header.
type Codec interface {
	Encode(cmd *message.Command) ([]byte, error)
	Decode(data []byte) (*message.Inbound, error)
	Type() CodecType
}

// GetCodec returns the codec implementation for codecType.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeEasyJSON {
		return &EasyJSONCodec{}
	}
	return &JSONCodec{}
}

// ParseCodecType maps a configuration name onto a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "easyjson":
		return CodecTypeEasyJSON, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

func validateCommand(cmd *message.Command) error {
	if cmd == nil {
		return fmt.Errorf("encode: nil command")
	}
	if cmd.Method == "" {
		return fmt.Errorf("encode command %d: empty method", cmd.ID)
	}
	return nil
}
