package gate_race

import (
	"fmt"
	"io"
	"net"

	"github.com/vmihailenco/msgpack/v5"
)

// Output encodings.
const (
	EncodingCSV     = "csv"
	EncodingMsgpack = "msgpack"
)

// commandEncoder renders one Command as a datagram payload.
type commandEncoder func(Command) ([]byte, error)

// encoderFor resolves an encoding name once; "" means csv.
func encoderFor(encoding string) (commandEncoder, error) {
	switch encoding {
	case EncodingCSV, "":
		return encodeCSV, nil
	case EncodingMsgpack:
		return func(cmd Command) ([]byte, error) { return msgpack.Marshal(cmd) }, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// encodeCSV writes "primitive,speed,heading,lateral,vertical,height,left,right".
func encodeCSV(cmd Command) ([]byte, error) {
	return []byte(fmt.Sprintf("%s,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f",
		cmd.Primitive, cmd.Speed, cmd.Heading, cmd.Lateral, cmd.Vertical,
		cmd.Height, cmd.Left, cmd.Right)), nil
}

// EncodeCommand renders cmd in the named encoding: a CSV line or a msgpack map.
func EncodeCommand(cmd Command, encoding string) ([]byte, error) {
	enc, err := encoderFor(encoding)
	if err != nil {
		return nil, err
	}
	return enc(cmd)
}

// OutputSender sends primitive commands to the flight stack over UDP.
type OutputSender struct {
	w      io.WriteCloser
	encode commandEncoder
}

// NewOutputSender resolves the encoding and dials cfg.UDPAddr. With no
// address the sender encodes nothing and drops every command.
func NewOutputSender(cfg OutputConfig) (*OutputSender, error) {
	encode, err := encoderFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if cfg.UDPAddr == "" {
		return &OutputSender{}, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.UDPAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve output addr: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial output: %w", err)
	}
	return &OutputSender{w: conn, encode: encode}, nil
}

// Close releases the socket of a dialed sender.
func (s *OutputSender) Close() error {
	if s.w == nil {
		return nil
	}
	return s.w.Close()
}

// Send writes cmd as one datagram.
func (s *OutputSender) Send(cmd Command) error {
	if s.w == nil {
		return nil
	}
	payload, err := s.encode(cmd)
	if err != nil {
		return err
	}
	_, err = s.w.Write(payload)
	return err
}
