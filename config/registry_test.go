package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryDefaults(t *testing.T) {
	r := NewRegistry(30)
	snap := r.Snapshot()
	assert.Equal(t, 30, snap.Config.FPS)
	assert.Equal(t, MaxWidth, snap.Screen.Width)
	assert.Equal(t, MaxHeight, snap.Screen.Height)
}

func TestApplyConfigNoopDoesNotRestart(t *testing.T) {
	r := NewRegistry(30)
	fps := 30
	r.ApplyConfig(ConfigUpdate{FPS: &fps})
	select {
	case <-r.Restart:
		t.Fatal("restart signaled for a no-op config update")
	default:
	}
}

func TestApplyConfigChangeSignalsOnce(t *testing.T) {
	r := NewRegistry(30)
	bw := 5
	q := 80
	fps := 15
	r.ApplyConfig(ConfigUpdate{BandwidthMbps: &bw, Quality: &q, FPS: &fps})

	select {
	case <-r.Restart:
	default:
		t.Fatal("expected a restart signal")
	}
	select {
	case <-r.Restart:
		t.Fatal("expected only one coalesced restart signal")
	default:
	}
}

func TestApplyConfigRapidChurnCoalesces(t *testing.T) {
	r := NewRegistry(30)
	for q := 11; q <= 30; q++ {
		qq := q
		r.ApplyConfig(ConfigUpdate{Quality: &qq})
	}
	count := 0
	for {
		select {
		case <-r.Restart:
			count++
		default:
			assert.LessOrEqual(t, count, 20)
			assert.GreaterOrEqual(t, count, 1)
			return
		}
	}
}

func TestApplyConfigQualityClamped(t *testing.T) {
	r := NewRegistry(30)
	hi := 500
	r.ApplyConfig(ConfigUpdate{Quality: &hi})
	assert.Equal(t, 100, r.Snapshot().Config.Quality)
}

func TestResizeZeroRejected(t *testing.T) {
	r := NewRegistry(30)
	before := r.Screen()
	got, changed := r.Resize(0, 0)
	assert.False(t, changed)
	assert.Equal(t, before, got)
}

func TestResizeClampsToMinimum(t *testing.T) {
	r := NewRegistry(30)
	got, changed := r.Resize(10, 10)
	require.True(t, changed)
	assert.Equal(t, MinWidth, got.Width)
	assert.Equal(t, MinHeight, got.Height)
}

func TestResizeSameValueIsNoop(t *testing.T) {
	r := NewRegistry(30)
	r.Resize(1280, 720)
	<-r.Restart // drain the signal from the first resize

	_, changed := r.Resize(1280, 720)
	assert.False(t, changed)
	select {
	case <-r.Restart:
		t.Fatal("resize to the same size should not signal a restart")
	default:
	}
}
