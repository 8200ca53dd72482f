// Package rtc implements the per-client WebRTC session: signaling, ICE
// candidate exchange, and attaching the process-wide shared video track to
// each new peer connection.
package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

const videoPayloadType = 96

// buildAPI constructs a fresh webrtc.API for one peer connection. A
// MediaEngine and interceptor.Registry are one-shot, stateful objects in
// pion, so each session gets its own; the per-connection NAT IP
// advertisement (see newSettingEngine) requires a fresh SettingEngine per
// session anyway, so building the whole API per session costs nothing
// extra.
func buildAPI(se webrtc.SettingEngine) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
			},
		},
		PayloadType: videoPayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// newSettingEngine pins the ICE UDP port range to the single configured
// HTTP port (a single-port deployment) and advertises advertiseIP as the
// 1-to-1 NAT host candidate IP.
func newSettingEngine(port int, advertiseIP string) webrtc.SettingEngine {
	se := webrtc.SettingEngine{}
	_ = se.SetEphemeralUDPPortRange(uint16(port), uint16(port))
	if advertiseIP != "" {
		se.SetNAT1To1IPs([]string{advertiseIP}, webrtc.ICECandidateTypeHost)
	}
	return se
}

var iceServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}
