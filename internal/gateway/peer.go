package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pitabwire/frame/workerpool"

	"github.com/voiceloop/voiceloop/internal/audio"
	"github.com/voiceloop/voiceloop/internal/turn"
)

// audioLevelExtensionID is the RTP header extension ID for the RFC 6464
// audio level. Must match the ID registered in the MediaEngine.
const audioLevelExtensionID = 1

// Peer wraps the WebRTC connection to one browser. The browser publishes
// two Opus audio tracks, the microphone and the counterpart capture,
// distinguished by track stream ID. Decoded PCM is written into the
// session's audio streams.
type Peer struct {
	id         string
	pc         *webrtc.PeerConnection
	userStream *audio.Stream
	cpStream   *audio.Stream
	pool       workerpool.WorkerPool

	userLevel atomic.Uint32 // last RFC 6464 level, 0-127 (127 = silence)
	cpLevel   atomic.Uint32

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	onClose   func()
}

// NewPeer creates a receive-only peer connection wired to the two
// session streams.
func NewPeer(
	parentCtx context.Context,
	id string,
	cfg webrtc.Configuration,
	userStream, cpStream *audio.Stream,
	pool workerpool.WorkerPool,
) (*Peer, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	if err := me.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{
		URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level",
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register audio level extension: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me))

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	p := &Peer{
		id:         id,
		pc:         pc,
		userStream: userStream,
		cpStream:   cpStream,
		pool:       pool,
		ctx:        ctx,
		cancel:     cancel,
	}

	// One recvonly transceiver per published track.
	for i := 0; i < 2; i++ {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			cancel()
			return nil, fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.handleTrack(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("peer: connection state changed",
			slog.String("peer_id", p.id), slog.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.Close()
		}
	})

	return p, nil
}

// ID returns the peer identifier.
func (p *Peer) ID() string { return p.id }

// OnClose registers a hook run once when the peer shuts down.
func (p *Peer) OnClose(fn func()) { p.onClose = fn }

// HandleOffer sets the remote SDP offer and returns the local answer.
func (p *Peer) HandleOffer(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	// Wait for ICE gathering to complete so the answer is self-contained.
	<-webrtc.GatheringCompletePromise(p.pc)

	return p.pc.LocalDescription().SDP, nil
}

// AddICECandidate adds a remote ICE candidate.
func (p *Peer) AddICECandidate(candidateJSON string) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	return p.pc.AddICECandidate(candidate)
}

// AudioLevels returns the last reported RFC 6464 levels for both tracks.
func (p *Peer) AudioLevels() (user, counterpart uint8) {
	return uint8(p.userLevel.Load()), uint8(p.cpLevel.Load())
}

// Close shuts the connection down. Safe to call multiple times.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		if p.pc != nil {
			p.pc.Close()
		}
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
}

// handleTrack routes a remote track to its session stream and starts the
// RTP reader.
func (p *Peer) handleTrack(track *webrtc.TrackRemote) {
	role := turn.SourceUser
	dst := p.userStream
	level := &p.userLevel
	if strings.Contains(track.StreamID(), turn.SourceCounterpart) ||
		strings.Contains(track.ID(), turn.SourceCounterpart) {
		role = turn.SourceCounterpart
		dst = p.cpStream
		level = &p.cpLevel
	}

	slog.Info("peer: track published",
		slog.String("peer_id", p.id),
		slog.String("role", role),
		slog.String("mime", track.Codec().MimeType))

	fn := func() { p.rtpReaderLoop(track, dst, level) }
	if p.pool != nil {
		if err := p.pool.Submit(p.ctx, fn); err != nil {
			go fn()
		}
	} else {
		go fn()
	}
}

// streamWriter adapts an audio.Stream to io.Writer for the Opus decoder.
type streamWriter struct {
	s *audio.Stream
}

func (w streamWriter) Write(pcm []byte) (int, error) {
	w.s.Write(pcm)
	return len(pcm), nil
}

// rtpReaderLoop reads RTP packets from a track, decodes Opus payloads to
// 16kHz PCM and writes them to the destination stream.
func (p *Peer) rtpReaderLoop(track *webrtc.TrackRemote, dst *audio.Stream, level *atomic.Uint32) {
	decoder := audio.NewOpusToPCM16Writer(streamWriter{s: dst})
	buf := make([]byte, 1500)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		if raw := pkt.Header.GetExtension(audioLevelExtensionID); raw != nil {
			var ext rtp.AudioLevelExtension
			if err := ext.Unmarshal(raw); err == nil {
				level.Store(uint32(ext.Level))
			}
		}

		if len(pkt.Payload) == 0 {
			continue
		}
		if _, err := decoder.Write(pkt.Payload); err != nil {
			// Corrupt or unsupported packet; skip it, the stream recovers
			// on the next keyframe-equivalent.
			continue
		}
	}
}
