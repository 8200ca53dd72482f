package wsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessagePing(t *testing.T) {
	m := parseMessage([]byte(`{"type":"ping","timestamp":1234.5}`))
	assert.Equal(t, "ping", m.Type)
	assert.Equal(t, 1234.5, m.Timestamp)
}

func TestParseMessageMouseMove(t *testing.T) {
	m := parseMessage([]byte(`{"type":"mousemove","x":0.25,"y":0.75}`))
	assert.Equal(t, "mousemove", m.Type)
	assert.Equal(t, 0.25, m.X)
	assert.Equal(t, 0.75, m.Y)
}

func TestParseMessageResize(t *testing.T) {
	m := parseMessage([]byte(`{"type":"resize","width":1920,"height":1080}`))
	assert.Equal(t, 1920, m.Width)
	assert.Equal(t, 1080, m.Height)
}

func TestParseMessageConfigDistinguishesAbsentFromZero(t *testing.T) {
	m := parseMessage([]byte(`{"type":"config","bandwidth":0,"framerate":15}`))
	require.NotNil(t, m.Config.Bandwidth)
	assert.Equal(t, 0, *m.Config.Bandwidth)
	require.NotNil(t, m.Config.Framerate)
	assert.Equal(t, 15, *m.Config.Framerate)
	assert.Nil(t, m.Config.Quality)
	assert.Nil(t, m.Config.VBR)
}

func TestParseMessageConfigCombinedFramerateAndBandwidth(t *testing.T) {
	m := parseMessage([]byte(`{"type":"config","bandwidth":5,"framerate":15}`))
	require.NotNil(t, m.Config.Bandwidth)
	require.NotNil(t, m.Config.Framerate)
	assert.Equal(t, 5, *m.Config.Bandwidth)
	assert.Equal(t, 15, *m.Config.Framerate)
}

func TestParseMessageWebrtcOfferKeepsRawSDP(t *testing.T) {
	m := parseMessage([]byte(`{"type":"webrtc_offer","sdp":{"type":"offer","sdp":"v=0..."}}`))
	assert.Equal(t, "offer", m.SDP.Get("type").String())
	assert.Equal(t, "v=0...", m.SDP.Get("sdp").String())
}
