package config

import (
	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/wire"
)

// Magic numbers for the persistent binary configuration file format (spec
// section 6 / original_source hzl_ServerNew.c / hzl_ClientNew.c).
var (
	ServerMagic = [5]byte{'H', 'Z', 'L', 's', 0}
	ClientMagic = [5]byte{'H', 'Z', 'L', 'c', 0}
)

const groupConfigLen = 24
const clientConfigLen = 1 + cbs.LtkLen

// EncodeServer writes a Server's configuration in the binary file format:
// magic || ServerConfig(3B) || clients(17B each) || groups(24B each).
func EncodeServer(s *Server) []byte {
	out := make([]byte, 0, len(ServerMagic)+3+len(s.Clients)*clientConfigLen+len(s.Groups)*groupConfigLen)
	out = append(out, ServerMagic[:]...)
	out = append(out, byte(len(s.Groups)), byte(len(s.Clients)), s.Config.HeaderType)
	for _, c := range s.Clients {
		out = append(out, c.Sid)
		out = append(out, c.Ltk[:]...)
	}
	for _, g := range s.Groups {
		out = append(out, encodeGroup(g)...)
	}
	return out
}

// DecodeServer parses the binary format EncodeServer produces.
func DecodeServer(data []byte) (*Server, cbs.Err) {
	if len(data) < len(ServerMagic)+3 {
		return nil, cbs.ErrUnexpectedEOF
	}
	if [5]byte(data[:5]) != ServerMagic {
		return nil, cbs.ErrInvalidFileMagicNumber
	}
	off := 5
	numGroups, numClients, headerType := data[off], data[off+1], data[off+2]
	off += 3

	s := &Server{Config: ServerConfig{HeaderType: headerType}}
	for i := 0; i < int(numClients); i++ {
		if off+clientConfigLen > len(data) {
			return nil, cbs.ErrUnexpectedEOF
		}
		var c ServerClientConfig
		c.Sid = data[off]
		copy(c.Ltk[:], data[off+1:off+clientConfigLen])
		s.Clients = append(s.Clients, c)
		off += clientConfigLen
	}
	for i := 0; i < int(numGroups); i++ {
		if off+groupConfigLen > len(data) {
			return nil, cbs.ErrUnexpectedEOF
		}
		g, err := decodeGroup(data[off : off+groupConfigLen])
		if err != cbs.OK {
			return nil, err
		}
		s.Groups = append(s.Groups, g)
		off += groupConfigLen
	}
	return s, cbs.OK
}

// EncodeClient writes a Client's configuration in the binary file format:
// magic || sid(1) || header_type(1) || ltk(16) || num_groups(1) || groups(24B each).
func EncodeClient(c *Client) []byte {
	out := make([]byte, 0, len(ClientMagic)+2+cbs.LtkLen+1+len(c.Groups)*groupConfigLen)
	out = append(out, ClientMagic[:]...)
	out = append(out, c.Config.Sid, c.Config.HeaderType)
	out = append(out, c.Config.Ltk[:]...)
	out = append(out, byte(len(c.Groups)))
	for _, g := range c.Groups {
		out = append(out, encodeGroup(g)...)
	}
	return out
}

// DecodeClient parses the binary format EncodeClient produces.
func DecodeClient(data []byte) (*Client, cbs.Err) {
	hdrLen := len(ClientMagic) + 2 + cbs.LtkLen + 1
	if len(data) < hdrLen {
		return nil, cbs.ErrUnexpectedEOF
	}
	if [5]byte(data[:5]) != ClientMagic {
		return nil, cbs.ErrInvalidFileMagicNumber
	}
	off := 5
	c := &Client{}
	c.Config.Sid = data[off]
	c.Config.HeaderType = data[off+1]
	off += 2
	copy(c.Config.Ltk[:], data[off:off+cbs.LtkLen])
	off += cbs.LtkLen
	numGroups := data[off]
	off++

	for i := 0; i < int(numGroups); i++ {
		if off+groupConfigLen > len(data) {
			return nil, cbs.ErrUnexpectedEOF
		}
		g, err := decodeGroup(data[off : off+groupConfigLen])
		if err != cbs.OK {
			return nil, err
		}
		c.Groups = append(c.Groups, g)
		off += groupConfigLen
	}
	return c, cbs.OK
}

func encodeGroup(g GroupConfig) []byte {
	buf := make([]byte, groupConfigLen)
	wire.EncodeLE32(buf[0:4], g.MaxCtrNonceDelayMsgs)
	wire.EncodeLE32(buf[4:8], uint32(g.CtrNonceUpperLimit))
	wire.EncodeLE32(buf[8:12], g.SessionDurationMillis)
	wire.EncodeLE32(buf[12:16], g.DelayBetweenRenNotificationsMillis)
	wire.EncodeLE32(buf[16:20], g.ClientSidsInGroupBitmap)
	wire.EncodeLE16(buf[20:22], g.MaxSilenceIntervalMillis)
	buf[22] = g.Gid
	buf[23] = 0 // padding
	return buf
}

func decodeGroup(buf []byte) (GroupConfig, cbs.Err) {
	var g GroupConfig
	g.MaxCtrNonceDelayMsgs = wire.DecodeLE32(buf[0:4])
	g.CtrNonceUpperLimit = cbs.CtrNonce(wire.DecodeLE32(buf[4:8]))
	g.SessionDurationMillis = wire.DecodeLE32(buf[8:12])
	g.DelayBetweenRenNotificationsMillis = wire.DecodeLE32(buf[12:16])
	g.ClientSidsInGroupBitmap = wire.DecodeLE32(buf[16:20])
	g.MaxSilenceIntervalMillis = wire.DecodeLE16(buf[20:22])
	g.Gid = buf[22]
	return g, cbs.OK
}
