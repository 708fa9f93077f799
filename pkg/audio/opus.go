// Package audio provides Opus codec wrappers and PCM helpers for the
// browser audio path. Interview sessions stream Opus packets in both
// directions over the session WebSocket: microphone audio up, synthesised
// interviewer speech down.
package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// The session socket uses 48 kHz Opus at 20 ms frame size.
const (
	// SampleRate is the Opus wire sample rate in Hz.
	SampleRate = 48000

	// FrameSizeMs is the Opus frame duration in milliseconds.
	FrameSizeMs = 20

	// FrameSize is the number of samples per channel per 20 ms frame.
	FrameSize = SampleRate * FrameSizeMs / 1000 // 960
)

// Decoder wraps a gopus Opus decoder for a single audio stream. Each stream
// needs its own Decoder to maintain decoder state correctly across
// consecutive frames.
type Decoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewDecoder creates an Opus decoder for a stream with the given channel
// count (1 for microphone capture, 2 for stereo playback).
func NewDecoder(channels int) (*Decoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// Decode decodes an Opus packet into interleaved PCM int16 samples and returns
// the result as a byte slice (little-endian int16 pairs).
func (d *Decoder) Decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, FrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// Encoder wraps a gopus Opus encoder for an output stream.
type Encoder struct {
	enc      *gopus.Encoder
	channels int
}

// NewEncoder creates an Opus encoder tuned for voice with the given channel count.
func NewEncoder(channels int) (*Encoder, error) {
	enc, err := gopus.NewEncoder(SampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &Encoder{enc: enc, channels: channels}, nil
}

// Encode encodes one frame of interleaved PCM int16 data (as little-endian
// bytes) into an Opus packet. pcmBytes must hold exactly FrameSize samples
// per channel.
func (e *Encoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := BytesToInt16s(pcmBytes)
	if len(pcm) != FrameSize*e.channels {
		return nil, fmt.Errorf("audio: opus encode: expected %d samples, got %d", FrameSize*e.channels, len(pcm))
	}
	opus, err := e.enc.Encode(pcm, FrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return opus, nil
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. Used to convert 48 kHz microphone PCM down to the
// 16 kHz expected by speech recognition backends, and synthesised speech up
// to the Opus wire rate.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
