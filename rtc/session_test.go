package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestTrack(t *testing.T) *webrtc.TrackLocalStaticSample {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeH264,
	}, "video", "lumacast")
	require.NoError(t, err)
	return track
}

func TestNewSessionAttachesSharedTrackAndCanClose(t *testing.T) {
	track := newTestTrack(t)

	s, err := NewSession(Config{
		Port:       0,
		VideoTrack: track,
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent
}

func TestHandleOfferProducesAnAnswerWithMungedSDP(t *testing.T) {
	track := newTestTrack(t)

	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()
	_, err = offerer.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	require.NoError(t, err)

	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))

	s, err := NewSession(Config{VideoTrack: track, Log: zerolog.Nop()})
	require.NoError(t, err)
	defer s.Close()

	answer, err := s.HandleOffer(offer)
	require.NoError(t, err)
	require.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
}
