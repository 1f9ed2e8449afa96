package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrameHeader(t *testing.T) {
	tests := []struct {
		name string
		typ  PacketType
		body []byte
		want []byte
	}{
		{"empty heartbeat", PacketHeartbeat, nil, []byte{3, 0, 0, 0}},
		{"data", PacketData, []byte{0xAA, 0xBB}, []byte{4, 0, 0, 2, 0xAA, 0xBB}},
		{"kick", PacketKick, []byte("{}"), []byte{5, 0, 0, 2, '{', '}'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.typ, tt.body)
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeFrame() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	bodies := [][]byte{
		nil,
		[]byte("x"),
		bytes.Repeat([]byte{0x5A}, 70000),
	}

	for _, body := range bodies {
		enc, err := EncodeFrame(PacketData, body)
		if err != nil {
			t.Fatalf("EncodeFrame(%d bytes) error = %v", len(body), err)
		}
		if len(enc) != HeaderSize+len(body) {
			t.Fatalf("encoded length = %d, want %d", len(enc), HeaderSize+len(body))
		}
		frames, rest := DecodeFrames(enc)
		if len(rest) != 0 {
			t.Fatalf("remainder = %d bytes, want 0", len(rest))
		}
		if len(frames) != 1 || frames[0].Type != PacketData || !bytes.Equal(frames[0].Body, body) {
			t.Fatalf("DecodeFrames() = %+v", frames)
		}
	}
}

func TestEncodeFrameMaxBody(t *testing.T) {
	body := make([]byte, MaxBodySize)
	enc, err := EncodeFrame(PacketData, body)
	if err != nil {
		t.Fatalf("EncodeFrame(max) error = %v", err)
	}
	if enc[1] != 0xFF || enc[2] != 0xFF || enc[3] != 0xFF {
		t.Errorf("length bytes = %x, want ffffff", enc[1:4])
	}
	frames, rest := DecodeFrames(enc)
	if len(frames) != 1 || len(frames[0].Body) != MaxBodySize || len(rest) != 0 {
		t.Fatalf("DecodeFrames(max) got %d frames, %d remainder", len(frames), len(rest))
	}

	_, err = EncodeFrame(PacketData, make([]byte, MaxBodySize+1))
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("EncodeFrame(max+1) error = %v, want ErrBodyTooLarge", err)
	}
}

func TestDecodeFramesConcatenated(t *testing.T) {
	a, _ := EncodeFrame(PacketHeartbeat, nil)
	b, _ := EncodeFrame(PacketData, []byte("hello"))
	c, _ := EncodeFrame(PacketKick, []byte(`{"reason":"x"}`))

	stream := append(append(append([]byte{}, a...), b...), c...)
	frames, rest := DecodeFrames(stream)
	if len(rest) != 0 {
		t.Fatalf("remainder = %v, want empty", rest)
	}
	want := []PacketType{PacketHeartbeat, PacketData, PacketKick}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.Type != want[i] {
			t.Errorf("frame %d type = %s, want %s", i, f.Type, want[i])
		}
	}
	if string(frames[1].Body) != "hello" {
		t.Errorf("frame 1 body = %q", frames[1].Body)
	}
}

func TestDecodeFramesPartial(t *testing.T) {
	enc, _ := EncodeFrame(PacketData, []byte("abcdef"))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", enc[:3]},
		{"header only", enc[:4]},
		{"short body", enc[:len(enc)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, rest := DecodeFrames(tt.data)
			if len(frames) != 0 {
				t.Errorf("got %d frames, want 0", len(frames))
			}
			if !bytes.Equal(rest, tt.data) {
				t.Errorf("remainder = %v, want %v", rest, tt.data)
			}
		})
	}
}

func TestDeframerSplitAtEveryBoundary(t *testing.T) {
	a, _ := EncodeFrame(PacketData, []byte("first"))
	b, _ := EncodeFrame(PacketHeartbeat, nil)
	c, _ := EncodeFrame(PacketData, []byte("third frame body"))
	stream := append(append(append([]byte{}, a...), b...), c...)

	for split := 0; split <= len(stream); split++ {
		var d Deframer
		frames := d.Feed(stream[:split])
		frames = append(frames, d.Feed(stream[split:])...)

		if len(frames) != 3 {
			t.Fatalf("split %d: got %d frames, want 3", split, len(frames))
		}
		if string(frames[0].Body) != "first" || frames[1].Type != PacketHeartbeat || string(frames[2].Body) != "third frame body" {
			t.Fatalf("split %d: frames = %+v", split, frames)
		}
		if d.Buffered() != 0 {
			t.Fatalf("split %d: %d bytes still buffered", split, d.Buffered())
		}
	}
}

func TestDeframerByteAtATime(t *testing.T) {
	enc, _ := EncodeFrame(PacketData, []byte("trickle"))

	var d Deframer
	var frames []Frame
	for i := range enc {
		frames = append(frames, d.Feed(enc[i:i+1])...)
		if i < len(enc)-1 && len(frames) != 0 {
			t.Fatalf("frame emitted early at byte %d", i)
		}
	}
	if len(frames) != 1 || string(frames[0].Body) != "trickle" {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestDeframerReset(t *testing.T) {
	enc, _ := EncodeFrame(PacketData, []byte("abc"))

	var d Deframer
	d.Feed(enc[:5])
	if d.Buffered() != 5 {
		t.Fatalf("Buffered() = %d, want 5", d.Buffered())
	}
	d.Reset()
	if d.Buffered() != 0 {
		t.Fatalf("Buffered() after Reset = %d", d.Buffered())
	}
	frames := d.Feed(enc)
	if len(frames) != 1 {
		t.Fatalf("got %d frames after reset, want 1", len(frames))
	}
}

func TestPacketTypeString(t *testing.T) {
	if PacketHandshakeAck.String() != "handshake_ack" {
		t.Errorf("String() = %q", PacketHandshakeAck.String())
	}
	if PacketType(9).Valid() {
		t.Error("PacketType(9).Valid() = true")
	}
	if PacketType(9).String() != "unknown(9)" {
		t.Errorf("String() = %q", PacketType(9).String())
	}
}
