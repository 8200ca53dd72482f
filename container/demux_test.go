package container

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildStream assembles a DKIF stream for test purposes: a 32-byte header
// plus, per frame, a 12-byte header (size + 8 ignored timestamp bytes)
// followed by the payload.
func buildStream(frames [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write(make([]byte, fileHeaderSize-4))
	for _, f := range frames {
		hdr := make([]byte, frameHeaderSize)
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(f)))
		buf.Write(hdr)
		buf.Write(f)
	}
	return buf.Bytes()
}

func TestNewDemuxerRejectsBadMagic(t *testing.T) {
	bad := append([]byte("NOPE"), make([]byte, fileHeaderSize-4)...)
	_, err := NewDemuxer(bytes.NewReader(bad), 1)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDemuxerRoundTripPreservesPayloadBytes(t *testing.T) {
	want := [][]byte{
		[]byte("first frame payload"),
		[]byte("second, a little longer payload"),
		{},
		[]byte("last"),
	}
	stream := buildStream(want)

	d, err := NewDemuxer(bytes.NewReader(stream), 7)
	require.NoError(t, err)

	var got [][]byte
	for {
		f, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, uint32(7), f.Epoch)
		got = append(got, f.Bytes)
	}

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], got[i])
	}
}

func TestDemuxerTruncatedFrameHeaderErrors(t *testing.T) {
	stream := buildStream([][]byte{[]byte("ok")})
	truncated := stream[:len(stream)-1] // chop into the payload mid-frame
	d, err := NewDemuxer(bytes.NewReader(stream[:fileHeaderSize+frameHeaderSize-3]), 1)
	require.NoError(t, err)
	_, err = d.Next()
	assert.Error(t, err)

	d2, err := NewDemuxer(bytes.NewReader(truncated), 1)
	require.NoError(t, err)
	_, err = d2.Next()
	assert.Error(t, err)
}
