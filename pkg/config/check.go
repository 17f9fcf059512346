package config

import (
	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/header"
)

// Check validates a Server's configuration against the CBS invariants.
// Grounded on original_source/tst/server/hzlServerTest_InitCheckServerConfig.c
// and hzlServerTest_InitCheckGroupConfigs.c.
func (s *Server) Check() cbs.Err {
	if len(s.Groups) == 0 {
		return cbs.ErrZeroGroups
	}
	if len(s.Clients) == 0 {
		return cbs.ErrZeroClients
	}
	if err := header.CheckType(s.Config.HeaderType); err != cbs.OK {
		return err
	}
	if len(s.Clients) > MaxClients {
		return cbs.ErrTooManyClients
	}

	maxGid := header.MaxGid(s.Config.HeaderType)
	maxSid := header.MaxSid(s.Config.HeaderType)
	if uint(len(s.Groups))-1 > uint(maxGid) {
		return cbs.ErrTooManyGroupsForHeaderType
	}
	if uint(len(s.Clients)) > uint(maxSid) {
		return cbs.ErrTooManyClientsForHeaderType
	}
	// Header types 5 and 6 have no GID field: only the broadcast Group may exist.
	if (header.Type(s.Config.HeaderType) == header.Type5 || header.Type(s.Config.HeaderType) == header.Type6) && len(s.Groups) > 1 {
		return cbs.ErrTooManyGroupsForHeaderType
	}

	if err := checkClients(s.Clients); err != nil {
		return *err
	}
	knownSids := make(map[cbs.Sid]bool, len(s.Clients))
	for _, c := range s.Clients {
		knownSids[c.Sid] = true
	}
	if err := checkGroups(s.Groups, true, knownSids, uint32(len(s.Clients))); err != nil {
		return *err
	}
	return cbs.OK
}

// Check validates a Client's configuration.
func (c *Client) Check() cbs.Err {
	if err := header.CheckType(c.Config.HeaderType); err != cbs.OK {
		return err
	}
	if c.Config.Sid == cbs.ServerSid {
		return cbs.ErrServerSidAssignedToClient
	}
	if uint(c.Config.Sid) > uint(header.MaxSid(c.Config.HeaderType)) {
		return cbs.ErrSidTooLargeForHeaderType
	}
	if isAllZero(c.Config.Ltk[:]) {
		return cbs.ErrLtkIsAllZeros
	}
	if len(c.Groups) == 0 {
		return cbs.ErrZeroGroups
	}
	if err := checkGroups(c.Groups, false, nil, 0); err != nil {
		return *err
	}
	return cbs.OK
}

func checkClients(clients []ServerClientConfig) *cbs.Err {
	for i, c := range clients {
		if c.Sid == cbs.ServerSid {
			e := cbs.ErrServerSidAssignedToClient
			return &e
		}
		if isAllZero(c.Ltk[:]) {
			e := cbs.ErrLtkIsAllZeros
			return &e
		}
		wantSid := cbs.Sid(i + 1)
		if c.Sid < wantSid {
			e := cbs.ErrSidsNotPresortedAscending
			return &e
		}
		if c.Sid > wantSid {
			e := cbs.ErrGapInSids
			return &e
		}
	}
	return nil
}

// checkGroups validates a Group array shared in shape by both Server and
// Client configs. For the Server (isServer == true, knownSids non-nil) the
// membership bitmap is also checked; amountOfClients bounds the broadcast
// Group's required bitmap.
func checkGroups(groups []GroupConfig, isServer bool, knownSids map[cbs.Sid]bool, amountOfClients uint32) *cbs.Err {
	foundGid0 := false
	for i, g := range groups {
		wantGid := cbs.Gid(i)
		if g.Gid < wantGid {
			e := cbs.ErrGidsNotPresortedAscending
			return &e
		}
		if g.Gid > wantGid {
			e := cbs.ErrGapInGids
			return &e
		}
		if g.Gid == cbs.BroadcastGid {
			foundGid0 = true
		}
		if g.MaxCtrNonceDelayMsgs > LargestMaxCtrNonceDelay {
			e := cbs.ErrInvalidMaxCtrNonceDelay
			return &e
		}
		if uint32(g.CtrNonceUpperLimit) > LargestCtrNonceUpperLimit {
			e := cbs.ErrTooLargeCtrNonceUpperLimit
			return &e
		}
		if g.DelayBetweenRenNotificationsMillis == 0 ||
			uint64(g.DelayBetweenRenNotificationsMillis)*6 >= uint64(g.SessionDurationMillis) {
			e := cbs.ErrInvalidDelayBetweenRenNotifications
			return &e
		}

		if isServer {
			if g.ClientSidsInGroupBitmap == 0 {
				e := cbs.ErrClientsBitmapZeroClients
				return &e
			}
			for bit := uint(0); bit < 32; bit++ {
				if g.ClientSidsInGroupBitmap&(1<<bit) == 0 {
					continue
				}
				if !knownSids[cbs.Sid(bit+1)] {
					e := cbs.ErrClientsBitmapUnknownSid
					return &e
				}
			}
			if g.Gid == cbs.BroadcastGid {
				want := uint32(1)<<amountOfClients - 1
				if g.ClientSidsInGroupBitmap&want != want {
					e := cbs.ErrClientsBitmapInvalidBroadcastGroup
					return &e
				}
			}
		}
	}
	if !foundGid0 {
		e := cbs.ErrMissingGid0
		return &e
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
