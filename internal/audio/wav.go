package audio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WriteWAVHeader writes a 44-byte WAV header for 16-bit mono PCM at the
// given sample rate.
func WriteWAVHeader(w io.Writer, dataSize, sampleRate int) error {
	totalSize := 36 + dataSize
	byteRate := sampleRate * 2 // mono, 16-bit

	// RIFF header
	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(totalSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}

	// fmt sub-chunk
	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil { // sub-chunk size
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil { // PCM format
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil { // mono
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(byteRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(2)); err != nil { // block align
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(16)); err != nil { // bits per sample
		return err
	}

	// data sub-chunk
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(dataSize))
}

// WAVBytes wraps raw 16-bit mono PCM in a WAV container, the format the
// transcription backends upload.
func WAVBytes(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	// Writing to a bytes.Buffer cannot fail.
	_ = WriteWAVHeader(&buf, len(pcm), sampleRate)
	buf.Write(pcm)
	return buf.Bytes()
}
