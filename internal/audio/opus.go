package audio

import (
	"encoding/binary"
	"io"

	"github.com/pion/opus"
)

// OpusToPCM16Writer decodes Opus packets to 16kHz mono S16LE PCM, the
// format the level monitor and transcription backends consume. Each Write
// call must contain exactly one Opus packet.
type OpusToPCM16Writer struct {
	decoder  *opus.Decoder
	dst      io.Writer
	pcmBuf48 []byte // 48kHz decoded samples
	pcmBuf16 []byte // 16kHz downsampled output
}

// NewOpusToPCM16Writer creates a writer that decodes Opus packets to 16kHz
// mono S16LE PCM and forwards them to dst.
func NewOpusToPCM16Writer(dst io.Writer) *OpusToPCM16Writer {
	return &OpusToPCM16Writer{
		decoder:  &opus.Decoder{},
		dst:      dst,
		pcmBuf48: make([]byte, 960*2*2), // 20ms at 48kHz stereo = 1920 samples * 2 bytes
		pcmBuf16: make([]byte, 320*2),   // 20ms at 16kHz mono = 320 samples * 2 bytes
	}
}

// Write decodes a single Opus packet and writes 16kHz mono S16LE PCM to
// the underlying writer.
func (w *OpusToPCM16Writer) Write(opusPacket []byte) (int, error) {
	_, isStereo, err := w.decoder.Decode(opusPacket, w.pcmBuf48)
	if err != nil {
		return 0, err
	}

	// Downsample from 48kHz to 16kHz (ratio 3:1) and fold stereo to mono.
	channels := 1
	if isStereo {
		channels = 2
	}
	samplesPerChannel := 960            // 20ms at 48kHz
	outSamples := samplesPerChannel / 3 // 320 samples at 16kHz

	if len(w.pcmBuf16) < outSamples*2 {
		w.pcmBuf16 = make([]byte, outSamples*2)
	}

	for i := 0; i < outSamples; i++ {
		srcIdx := i * 3 * channels * 2
		if srcIdx+1 >= len(w.pcmBuf48) {
			break
		}
		sample := int16(binary.LittleEndian.Uint16(w.pcmBuf48[srcIdx:]))
		if isStereo && srcIdx+3 < len(w.pcmBuf48) {
			right := int16(binary.LittleEndian.Uint16(w.pcmBuf48[srcIdx+2:]))
			sample = int16((int32(sample) + int32(right)) / 2)
		}
		binary.LittleEndian.PutUint16(w.pcmBuf16[i*2:], uint16(sample))
	}

	return w.dst.Write(w.pcmBuf16[:outSamples*2])
}
