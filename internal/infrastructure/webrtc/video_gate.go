package webrtc

import (
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// VideoGate decides which RTP packets are forwarded for a session. Audio
// always passes. In audio-only mode video is dropped, and after leaving it
// video resumes at the next keyframe so the decoder never starts mid-GOP.
type VideoGate struct {
	mu                 sync.Mutex
	audioOnly          bool
	waitingForKeyframe bool

	forwarded uint64
	dropped   uint64
}

func NewVideoGate() *VideoGate {
	return &VideoGate{}
}

// SetAudioOnly switches video forwarding off or back on.
func (g *VideoGate) SetAudioOnly(enable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if enable == g.audioOnly {
		return
	}
	g.audioOnly = enable
	g.waitingForKeyframe = !enable
}

func (g *VideoGate) AudioOnly() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.audioOnly
}

// Forward reports whether the packet should be written to the outgoing track.
func (g *VideoGate) Forward(codec webrtc.RTPCodecParameters, packet *rtp.Packet) bool {
	if !isVideo(codec.MimeType) {
		g.count(true)
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.audioOnly {
		g.dropped++
		return false
	}
	if g.waitingForKeyframe {
		if !IsKeyframe(codec.MimeType, packet) {
			g.dropped++
			return false
		}
		g.waitingForKeyframe = false
	}
	g.forwarded++
	return true
}

// Counts returns forwarded and dropped packet totals.
func (g *VideoGate) Counts() (forwarded, dropped uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.forwarded, g.dropped
}

func (g *VideoGate) count(forwarded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if forwarded {
		g.forwarded++
	} else {
		g.dropped++
	}
}

func isVideo(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "video/")
}

// IsKeyframe detects the start of a VP8 or H.264 keyframe.
func IsKeyframe(mimeType string, packet *rtp.Packet) bool {
	if packet == nil || len(packet.Payload) == 0 {
		return false
	}

	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return isVP8Keyframe(packet.Payload)
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return isH264Keyframe(packet.Payload)
	default:
		return false
	}
}

func isVP8Keyframe(payload []byte) bool {
	// payload descriptor: X|R|N|S|R|PID
	first := payload[0]
	extended := first&0x80 != 0
	start := first&0x10 != 0
	partition := first & 0x07
	if !start || partition != 0 {
		return false
	}

	offset := 1
	if extended {
		if len(payload) <= offset {
			return false
		}
		ext := payload[offset]
		offset++
		if ext&0x80 != 0 { // picture id
			if len(payload) <= offset {
				return false
			}
			if payload[offset]&0x80 != 0 {
				offset += 2
			} else {
				offset++
			}
		}
		if ext&0x40 != 0 { // tl0picidx
			offset++
		}
		if ext&0x30 != 0 { // tid/keyidx
			offset++
		}
	}

	if len(payload) <= offset {
		return false
	}
	// P bit of the VP8 payload header is 0 for keyframes.
	return payload[offset]&0x01 == 0
}

func isH264Keyframe(payload []byte) bool {
	const (
		nalIDR   = 5
		nalSPS   = 7
		nalSTAPA = 24
		nalFUA   = 28
	)

	switch nalType := payload[0] & 0x1F; nalType {
	case nalIDR, nalSPS:
		return true
	case nalSTAPA:
		for offset := 1; offset+2 < len(payload); {
			size := int(payload[offset])<<8 | int(payload[offset+1])
			offset += 2
			if offset >= len(payload) {
				return false
			}
			if t := payload[offset] & 0x1F; t == nalIDR || t == nalSPS {
				return true
			}
			offset += size
		}
		return false
	case nalFUA:
		if len(payload) < 2 {
			return false
		}
		startBit := payload[1]&0x80 != 0
		return startBit && payload[1]&0x1F == nalIDR
	default:
		return false
	}
}
