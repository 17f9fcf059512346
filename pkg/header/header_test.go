package header_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/header"
)

func TestLenMaxGidMaxSid(t *testing.T) {
	cases := []struct {
		typ           uint8
		len           uint8
		maxGid, maxSid uint8
	}{
		{0, 3, 255, 255},
		{1, 2, 255, 31},
		{2, 2, 31, 255},
		{3, 1, 7, 3},
		{4, 1, 3, 7},
		{5, 2, 0, 255},
		{6, 1, 0, 31},
	}
	for _, c := range cases {
		assert.Equal(t, c.len, header.Len(c.typ), "type %d", c.typ)
		assert.Equal(t, c.maxGid, header.MaxGid(c.typ), "type %d", c.typ)
		assert.Equal(t, c.maxSid, header.MaxSid(c.typ), "type %d", c.typ)
	}
}

func TestInvalidType(t *testing.T) {
	assert.Equal(t, cbs.ErrInvalidHeaderType, header.CheckType(7))
	assert.Equal(t, cbs.OK, header.CheckType(6))
	assert.Zero(t, header.Len(7))
}

func TestRoundTrip(t *testing.T) {
	for typ := uint8(0); typ <= 6; typ++ {
		maxGid, maxSid := header.MaxGid(typ), header.MaxSid(typ)
		for _, pty := range []cbs.Pty{cbs.PtyREN, cbs.PtyREQ, cbs.PtySADFD, 7} {
			hdr := cbs.Header{Gid: maxGid, Sid: maxSid, Pty: pty}
			buf := make([]byte, header.Len(typ))
			err := header.Pack(buf, typ, hdr)
			require.Equal(t, cbs.OK, err)
			got, err := header.Unpack(buf, typ)
			require.Equal(t, cbs.OK, err)
			assert.Equal(t, hdr, got, "type %d pty %d", typ, pty)
		}
	}
}

func TestBroadcastTypesForceGidZero(t *testing.T) {
	for _, typ := range []uint8{5, 6} {
		buf := make([]byte, header.Len(typ))
		_ = header.Pack(buf, typ, cbs.Header{Gid: 9, Sid: 3, Pty: cbs.PtyUAD})
		got, err := header.Unpack(buf, typ)
		require.Equal(t, cbs.OK, err)
		assert.Equal(t, cbs.BroadcastGid, got.Gid)
	}
}
