package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWAVBytes(t *testing.T) {
	pcm := pcmFrame(1000, 160)
	wav := WAVBytes(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) {
		t.Errorf("missing RIFF magic: %q", wav[0:4])
	}
	if !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Errorf("missing WAVE magic: %q", wav[8:12])
	}

	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(wav[28:32]); byteRate != 32000 {
		t.Errorf("byte rate = %d, want 32000", byteRate)
	}
	if dataSize := binary.LittleEndian.Uint32(wav[40:44]); int(dataSize) != len(pcm) {
		t.Errorf("data size = %d, want %d", dataSize, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload does not match input PCM")
	}
}
