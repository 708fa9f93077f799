package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/oratiohq/oratio/pkg/audio"
)

// captureSampleRate is the PCM rate the STT stream expects.
const captureSampleRate = 16000

// playbackSampleRate is the PCM rate synthesized speech arrives at from the
// TTS providers (they are configured for 16 kHz output).
const playbackSampleRate = 16000

// AudioHub is the playback sink for one session. Synthesized interviewer
// speech is forwarded to the attached websocket writer; with no client
// attached the audio is dropped, since the transcript already carries the
// turn text.
type AudioHub struct {
	mu    sync.Mutex
	write func(ctx context.Context, pcm []byte) error
}

// NewAudioHub returns an empty hub.
func NewAudioHub() *AudioHub { return &AudioHub{} }

// Attach routes playback audio to write until Detach is called. A second
// client replaces the first.
func (h *AudioHub) Attach(write func(ctx context.Context, pcm []byte) error) {
	h.mu.Lock()
	h.write = write
	h.mu.Unlock()
}

// Detach stops routing playback audio.
func (h *AudioHub) Detach() {
	h.mu.Lock()
	h.write = nil
	h.mu.Unlock()
}

// WriteAudio implements [playback.Sink].
func (h *AudioHub) WriteAudio(ctx context.Context, pcm []byte) error {
	h.mu.Lock()
	write := h.write
	h.mu.Unlock()
	if write == nil {
		return nil
	}
	return write(ctx, pcm)
}

// opusWriter frames playback PCM into 20 ms Opus packets on the socket.
// Playback chunks arrive at 16 kHz and in arbitrary sizes; they are
// upsampled to the Opus wire rate and buffered until a full frame is
// available, so a sub-frame remainder waits for the next chunk. Calls are
// serialised by the playback run loop.
type opusWriter struct {
	conn *websocket.Conn
	enc  *audio.Encoder
	buf  []byte
}

func (ow *opusWriter) write(ctx context.Context, pcm []byte) error {
	ow.buf = append(ow.buf, audio.ResampleMono16(pcm, playbackSampleRate, audio.SampleRate)...)

	const frameBytes = audio.FrameSize * 2
	for len(ow.buf) >= frameBytes {
		packet, err := ow.enc.Encode(ow.buf[:frameBytes])
		if err != nil {
			return err
		}
		ow.buf = ow.buf[frameBytes:]

		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = ow.conn.Write(writeCtx, websocket.MessageBinary, packet)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// handleWS upgrades the connection and bridges it to the session:
//
//   - binary frames from the client are Opus packets (48 kHz mono); they are
//     decoded, downsampled to 16 kHz, and forwarded to the live capture.
//   - session events are written to the client as JSON text frames.
//   - synthesized interviewer speech is written as binary frames of Opus
//     packets (48 kHz mono, 20 ms).
func (srv *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := srv.manager.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	events, unsubscribe, err := srv.manager.Subscribe(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		srv.logger.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session bridge closed")

	ctx := r.Context()

	hub, _ := srv.manager.Hub(id)
	if hub != nil {
		encoder, err := audio.NewEncoder(1)
		if err != nil {
			srv.logger.Error("opus encoder unavailable", "session_id", id, "error", err)
		} else {
			ow := &opusWriter{conn: conn, enc: encoder}
			hub.Attach(ow.write)
			defer hub.Detach()
		}
	}

	// Event writer.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				srv.logger.Error("event encoding failed", "session_id", id, "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}()

	// Audio reader. Each binary frame is one Opus packet.
	decoder, err := audio.NewDecoder(1)
	if err != nil {
		srv.logger.Error("opus decoder unavailable", "session_id", id, "error", err)
		conn.Close(websocket.StatusInternalError, "audio decoding unavailable")
		return
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				break
			}
			srv.logger.Debug("websocket read ended", "session_id", id, "error", err)
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}

		pcm, err := decoder.Decode(data)
		if err != nil {
			srv.logger.Debug("opus packet dropped", "session_id", id, "error", err)
			continue
		}
		pcm = audio.ResampleMono16(pcm, audio.SampleRate, captureSampleRate)
		if err := s.SendAudio(pcm); err != nil {
			// No live capture: the client is streaming outside an answer.
			continue
		}
	}

	<-writerDone
	conn.Close(websocket.StatusNormalClosure, "")
}
