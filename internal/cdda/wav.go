package cdda

import (
	"encoding/binary"
	"io"
)

// CD audio constants
const (
	SampleRate    = 44100 // Hz
	Channels      = 2
	BitsPerSample = 16
	BytesPerFrame = 2352 // one CD-DA frame, 1/75 s
)

// WAVHeaderSize is the size of the canonical PCM header.
const WAVHeaderSize = 44

// WAVHeader returns the RIFF header for dataSize bytes of CD-DA samples.
func WAVHeader(dataSize uint32) []byte {
	h := make([]byte, WAVHeaderSize)

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize) // file size minus the RIFF preamble
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], Channels)
	binary.LittleEndian.PutUint32(h[24:28], SampleRate)

	blockAlign := Channels * (BitsPerSample / 8)
	binary.LittleEndian.PutUint32(h[28:32], uint32(SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], BitsPerSample)

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	return h
}

// WriteWAV creates a WAV file from raw CD audio samples.
// This is a pure function: raw audio bytes → complete WAV file bytes.
func WriteWAV(samples []byte) []byte {
	wav := make([]byte, 0, WAVHeaderSize+len(samples))
	wav = append(wav, WAVHeader(uint32(len(samples)))...)
	return append(wav, samples...)
}

// WAVWriter streams frames into a WAV file whose length is known up front,
// as it is when ripping a track whose extent comes from the TOC.
type WAVWriter struct {
	w       io.Writer
	pending uint32
}

// NewWAVWriter writes the header for frames CD-DA frames to w.
func NewWAVWriter(w io.Writer, frames int) (*WAVWriter, error) {
	size := uint32(frames * BytesPerFrame)
	if _, err := w.Write(WAVHeader(size)); err != nil {
		return nil, err
	}
	return &WAVWriter{w: w, pending: size}, nil
}

// Write appends samples. Writing past the declared length fails with
// io.ErrShortWrite.
func (ww *WAVWriter) Write(p []byte) (int, error) {
	if uint32(len(p)) > ww.pending {
		n, err := ww.w.Write(p[:ww.pending])
		ww.pending -= uint32(n)
		if err == nil {
			err = io.ErrShortWrite
		}
		return n, err
	}
	n, err := ww.w.Write(p)
	ww.pending -= uint32(n)
	return n, err
}

// Remaining returns the number of sample bytes still expected.
func (ww *WAVWriter) Remaining() int {
	return int(ww.pending)
}
