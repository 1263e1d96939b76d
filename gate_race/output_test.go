package gate_race

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeCommandCSV(t *testing.T) {
	b, err := EncodeCommand(Command{T: 3, Primitive: PrimitiveSearchSweep, Left: -0.5, Right: 0.5}, EncodingCSV)
	require.NoError(t, err)
	assert.Equal(t, "SEARCH_SWEEP,0.0000,0.0000,0.0000,0.0000,0.0000,-0.5000,0.5000", string(b))
}

func TestEncodeCommandMsgpack(t *testing.T) {
	cmd := Command{T: 1.25, Primitive: PrimitiveGoStraight, Speed: 0.5}
	b, err := EncodeCommand(cmd, EncodingMsgpack)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(b, &fields))
	assert.Contains(t, fields, "speed")
	assert.NotContains(t, fields, "left")

	var got Command
	require.NoError(t, msgpack.Unmarshal(b, &got))
	assert.Equal(t, cmd, got)
}

func TestEncodeCommandUnknown(t *testing.T) {
	_, err := EncodeCommand(Command{}, "xml")
	assert.Error(t, err)
}

func TestOutputSenderWritesDatagram(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	sender, err := NewOutputSender(OutputConfig{UDPAddr: pc.LocalAddr().String(), Encoding: EncodingCSV})
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(Command{Primitive: PrimitiveLand}))

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "LAND,0.0000,0.0000,0.0000,0.0000,0.0000,0.0000,0.0000", string(buf[:n]))
}

func TestOutputSenderRejectsUnknownEncoding(t *testing.T) {
	_, err := NewOutputSender(OutputConfig{UDPAddr: "127.0.0.1:9", Encoding: "xml"})
	assert.Error(t, err)
}

func TestNoopOutputSender(t *testing.T) {
	sender, err := NewOutputSender(OutputConfig{})
	require.NoError(t, err)
	assert.NoError(t, sender.Send(Command{Primitive: PrimitiveHover}))
	assert.NoError(t, sender.Close())
}
