// Package config holds the constant configuration types for a CBS Server
// and Client, validates them against the protocol's invariants, and
// provides the binary persistent file format plus an ini.v1-based
// human-authored source compiler for it.
//
// Grounded on original_source/inc/hzl_Server.h (hzl_ServerConfig_t,
// hzl_ServerClientConfig_t, hzl_ServerGroupConfig_t). hzl_Client.h was not
// retrieved into original_source/; ClientConfig and Client below are
// this repository's own symmetric counterpart, inferred from the Server
// struct layout and the protocol specification's Client requirements
// (own SID/LTK, membership in a subset of Groups, the same per-Group
// freshness/session parameters).
package config

import cbs "github.com/samsamfire/cbs"

// MaxClients bounds the Clients a Server may track: the per-Group
// membership bitmap is 32 bits wide, one bit per Client Sid (bit i is Sid i+1).
const MaxClients = 32

// LargestMaxCtrNonceDelay mirrors cbs.LargestMaxCtrNonceDelay (2^22).
const LargestMaxCtrNonceDelay = cbs.LargestMaxCtrNonceDelay

// LargestCtrNonceUpperLimit mirrors cbs.LargestCtrNonceUpperLimit (2^24-128).
const LargestCtrNonceUpperLimit = cbs.LargestCtrNonceUpperLimit

// ServerConfig is the Server's top-level constant configuration.
type ServerConfig struct {
	HeaderType uint8
}

// ServerClientConfig is one Client's configuration as known by the Server.
// An array of these must be sorted by strictly ascending, gapless Sid
// starting at 1.
type ServerClientConfig struct {
	Sid cbs.Sid
	Ltk [cbs.LtkLen]byte
}

// GroupConfig is one Group's constant configuration, shared in meaning by
// both Server and Client (the Server additionally carries the membership
// bitmap). An array of these must be sorted by strictly ascending, gapless
// Gid starting at 0 (the broadcast Group).
type GroupConfig struct {
	Gid                             cbs.Gid
	MaxCtrNonceDelayMsgs            uint32
	CtrNonceUpperLimit              cbs.CtrNonce
	SessionDurationMillis           uint32
	DelayBetweenRenNotificationsMillis uint32
	MaxSilenceIntervalMillis        uint16
	// ClientSidsInGroupBitmap is Server-only: bit i set means the Client
	// with Sid i+1 is a member. The broadcast Group (Gid 0) must have every
	// configured Client's bit set.
	ClientSidsInGroupBitmap uint32
}

// Server bundles everything Server.Check and pkg/server need.
type Server struct {
	Config  ServerConfig
	Clients []ServerClientConfig
	Groups  []GroupConfig
}

// ClientConfig is the Client's own identity.
type ClientConfig struct {
	HeaderType uint8
	Sid        cbs.Sid
	Ltk        [cbs.LtkLen]byte
}

// Client bundles a Client's own identity plus the Groups it belongs to.
type Client struct {
	Config ClientConfig
	Groups []GroupConfig
}
