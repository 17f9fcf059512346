package config

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	cbs "github.com/samsamfire/cbs"
)

// Package-internal compiler from a human-authored *.cbs.ini source to the
// in-memory Server/Client config types, which EncodeServer/EncodeClient then
// serialize to the binary file format. Grounded on the teacher's EDS-via-
// ini.v1 pattern in pkg/od/parser_v1.go: a top-level section plus a family of
// regex-matched repeating sections, one per Group/Client.
//
// Expected layout:
//
//	[server]
//	HeaderType = 1
//
//	[client.1]
//	Ltk = 000102030405060708090a0b0c0d0e0f
//
//	[group.0]
//	MaxCtrNonceDelayMsgs = 16
//	CtrNonceUpperLimit = 1000000
//	SessionDurationMillis = 3600000
//	DelayBetweenRenNotificationsMillis = 60000
//	MaxSilenceIntervalMillis = 5000
//	Members = 1,2,3

var clientSectionRe = regexp.MustCompile(`^client\.(\d+)$`)
var groupSectionRe = regexp.MustCompile(`^group\.(\d+)$`)

// ParseServerINI compiles a Server's *.cbs.ini source. file may be a path,
// an *os.File, or a []byte, per ini.Load.
func ParseServerINI(file any) (*Server, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("config: load ini: %w", err)
	}

	headerType, err := f.Section("server").Key("HeaderType").Uint()
	if err != nil {
		return nil, fmt.Errorf("config: [server] HeaderType: %w", err)
	}
	s := &Server{Config: ServerConfig{HeaderType: uint8(headerType)}}

	for _, section := range f.Sections() {
		name := section.Name()

		if m := clientSectionRe.FindStringSubmatch(name); m != nil {
			sid, err := strconv.ParseUint(m[1], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("config: [%s]: %w", name, err)
			}
			ltk, err := parseLtkHex(section.Key("Ltk").String())
			if err != nil {
				return nil, fmt.Errorf("config: [%s] Ltk: %w", name, err)
			}
			c := ServerClientConfig{Sid: cbs.Sid(sid)}
			copy(c.Ltk[:], ltk)
			s.Clients = append(s.Clients, c)
		}

		if m := groupSectionRe.FindStringSubmatch(name); m != nil {
			gid, err := strconv.ParseUint(m[1], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("config: [%s]: %w", name, err)
			}
			g, err := parseGroupSection(section, cbs.Gid(gid))
			if err != nil {
				return nil, err
			}
			bitmap, err := parseMembersBitmap(section.Key("Members").String())
			if err != nil {
				return nil, fmt.Errorf("config: [%s] Members: %w", name, err)
			}
			g.ClientSidsInGroupBitmap = bitmap
			s.Groups = append(s.Groups, g)
		}
	}

	sort.Slice(s.Clients, func(i, j int) bool { return s.Clients[i].Sid < s.Clients[j].Sid })
	sort.Slice(s.Groups, func(i, j int) bool { return s.Groups[i].Gid < s.Groups[j].Gid })
	return s, nil
}

// ParseClientINI compiles a Client's *.cbs.ini source: the [client] section
// holds the Client's own HeaderType/Sid/Ltk, and every [group.N] section it
// belongs to (no Members key needed: that is Server-only bookkeeping).
func ParseClientINI(file any) (*Client, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("config: load ini: %w", err)
	}

	clientSection := f.Section("client")
	headerType, err := clientSection.Key("HeaderType").Uint()
	if err != nil {
		return nil, fmt.Errorf("config: [client] HeaderType: %w", err)
	}
	sid, err := clientSection.Key("Sid").Uint()
	if err != nil {
		return nil, fmt.Errorf("config: [client] Sid: %w", err)
	}
	ltk, err := parseLtkHex(clientSection.Key("Ltk").String())
	if err != nil {
		return nil, fmt.Errorf("config: [client] Ltk: %w", err)
	}

	c := &Client{Config: ClientConfig{HeaderType: uint8(headerType), Sid: cbs.Sid(sid)}}
	copy(c.Config.Ltk[:], ltk)

	for _, section := range f.Sections() {
		m := groupSectionRe.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		gid, err := strconv.ParseUint(m[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("config: [%s]: %w", section.Name(), err)
		}
		g, err := parseGroupSection(section, cbs.Gid(gid))
		if err != nil {
			return nil, err
		}
		c.Groups = append(c.Groups, g)
	}

	sort.Slice(c.Groups, func(i, j int) bool { return c.Groups[i].Gid < c.Groups[j].Gid })
	return c, nil
}

func parseGroupSection(section *ini.Section, gid cbs.Gid) (GroupConfig, error) {
	g := GroupConfig{Gid: gid}
	var err error
	if g.MaxCtrNonceDelayMsgs, err = uintKey(section, "MaxCtrNonceDelayMsgs"); err != nil {
		return g, err
	}
	upperLimit, err := uintKey(section, "CtrNonceUpperLimit")
	if err != nil {
		return g, err
	}
	g.CtrNonceUpperLimit = cbs.CtrNonce(upperLimit)
	if g.SessionDurationMillis, err = uintKey(section, "SessionDurationMillis"); err != nil {
		return g, err
	}
	if g.DelayBetweenRenNotificationsMillis, err = uintKey(section, "DelayBetweenRenNotificationsMillis"); err != nil {
		return g, err
	}
	silence, err := uintKey(section, "MaxSilenceIntervalMillis")
	if err != nil {
		return g, err
	}
	g.MaxSilenceIntervalMillis = uint16(silence)
	return g, nil
}

func uintKey(section *ini.Section, key string) (uint32, error) {
	v, err := section.Key(key).Uint()
	if err != nil {
		return 0, fmt.Errorf("[%s] %s: %w", section.Name(), key, err)
	}
	return uint32(v), nil
}

func parseLtkHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != cbs.LtkLen {
		return nil, fmt.Errorf("ltk must be %d bytes, got %d", cbs.LtkLen, len(b))
	}
	return b, nil
}

// parseMembersBitmap parses a comma-separated list of Sids (e.g. "1,2,3")
// into the Server's per-Group membership bitmap (bit i set means Sid i+1).
func parseMembersBitmap(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	var bitmap uint32
	for _, part := range strings.Split(s, ",") {
		sid, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return 0, err
		}
		if sid == 0 {
			return 0, fmt.Errorf("sid 0 is reserved for the server")
		}
		bitmap |= 1 << (sid - 1)
	}
	return bitmap, nil
}
