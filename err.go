// Package cbs implements the core of the CAN Bus Security (CBS) protocol:
// confidentiality, authenticity and freshness of payloads carried over CAN
// FD frames between one Server and N Clients organized into Groups.
package cbs

import "fmt"

// Err is the error code returned by every CBS API function. The numeric
// bands mirror the three error groups of the CBS protocol specification.
type Err uint16

// Success.
const OK Err = 0

// Standard CBS security warnings (reserved codes 1..15). A security warning
// never tears down a session; the caller may log or count it, repair
// happens by the counterparty reissuing REQ/RES.
const (
	ErrInvalidTag             Err = 1
	ErrMessageFromMyself      Err = 2
	ErrNotExpectingAResponse  Err = 3
	ErrServerOnlyMessage      Err = 4
	ErrResponseTimeout        Err = 5
	ErrOldMessage             Err = 6
	ErrDenialOfService        Err = 7 // Server only. Reserved: never returned, see DESIGN.md.
	ErrNotInGroup             Err = 8
	ErrReceivedOverflownNonce Err = 9
	ErrReceivedZeroKey        Err = 10 // Client only.
	errSecWarnRfu1            Err = 11
	errSecWarnRfu2            Err = 12
	errSecWarnRfu3            Err = 13
	errSecWarnRfu4            Err = 14
	errSecWarnRfu5            Err = 15
)

// Generic / programming error.
const ErrProgramming Err = 16

// Configuration / initialization errors.
const (
	ErrNullCtx                              Err = 17
	ErrNullConfigClient                     Err = 18
	ErrNullConfigServer                     Err = 19
	ErrZeroGroups                           Err = 20
	ErrLtkIsAllZeros                        Err = 21
	ErrInvalidHeaderType                    Err = 22
	ErrServerSidAssignedToClient            Err = 23
	ErrSidsNotPresortedAscending            Err = 24
	ErrGapInSids                            Err = 25
	ErrSidTooLargeForHeaderType             Err = 26
	ErrTooManyGroupsForHeaderType           Err = 27
	ErrZeroClients                          Err = 28
	ErrTooManyClients                       Err = 29
	ErrTooManyClientsForHeaderType          Err = 30
	ErrNullConfigClients                    Err = 31
	ErrNullConfigGroups                     Err = 32
	ErrGidsNotPresortedAscending            Err = 33
	ErrGapInGids                            Err = 34
	ErrMissingGid0                          Err = 35
	ErrInvalidMaxCtrNonceDelay              Err = 36
	ErrGidTooLargeForHeaderType             Err = 37
	ErrTooLargeCtrNonceUpperLimit           Err = 38
	ErrInvalidDelayBetweenRenNotifications  Err = 39
	ErrClientsBitmapZeroClients             Err = 40
	ErrClientsBitmapUnknownSid              Err = 41
	ErrClientsBitmapInvalidBroadcastGroup   Err = 42
	ErrNullStatesGroups                     Err = 43
	ErrNullCurrentTimeFunc                  Err = 44
	ErrNullTrngFunc                         Err = 45
)

// TX/RX function errors.
const (
	ErrNullPdu             Err = 60
	ErrNullSdu             Err = 61
	ErrUnknownGroup        Err = 62
	ErrUnknownSource       Err = 63
	ErrSessionNotEstablished Err = 64
)

// TX function errors.
const (
	ErrTooLongSdu       Err = 70
	ErrHandshakeOngoing Err = 71
	ErrNoPotentialReceiver Err = 72
	ErrRenewalOngoing   Err = 73
)

// RX function errors.
const (
	ErrInvalidPayloadType         Err = 80
	ErrTooShortPduForHeader       Err = 81
	ErrTooShortPduForSadfd        Err = 82
	ErrTooShortPduForReq          Err = 83
	ErrTooShortPduForRes          Err = 84
	ErrTooShortPduForRen          Err = 85
	ErrTooLongCiphertext          Err = 86
	ErrMsgIgnored                 Err = 87
	ErrReceivedZeroReqNonce       Err = 88
)

// Not named in the original CBS error taxonomy: reserved payload types
// (SADTP) decode cleanly but are not implemented. Routed here rather than
// to ErrProgramming, see DESIGN.md Open Question #3.
const ErrNotImplemented Err = 90

// Failed IO operation errors.
const (
	ErrCannotGetCurrentTime          Err = 100
	ErrCannotGenerateRandom          Err = 101
	ErrCannotGenerateNonZeroRandom   Err = 102
)

// Config file errors.
const (
	ErrNullFilename          Err = 120
	ErrCannotOpenConfigFile  Err = 121
	ErrUnexpectedEOF         Err = 122
	ErrInvalidFileMagicNumber Err = 123
	ErrMallocFailed          Err = 124
)

var errDescriptions = map[Err]string{
	OK:                                     "success",
	ErrInvalidTag:                          "received message failed authentication (INV)",
	ErrMessageFromMyself:                   "received message claims our own source identifier (MFM)",
	ErrNotExpectingAResponse:               "received a response while none was expected (NER)",
	ErrServerOnlyMessage:                   "received a server-only message type from a non-server source (SOM)",
	ErrResponseTimeout:                     "no response received within the request timeout (RTO)",
	ErrOldMessage:                          "received message counter nonce is too old (OLD)",
	ErrDenialOfService:                     "receiving too many suspect messages (DOS)",
	ErrNotInGroup:                          "requesting client is not a member of the group (NIG)",
	ErrReceivedOverflownNonce:              "received message counter nonce has overflown (RON)",
	ErrReceivedZeroKey:                     "decrypted short-term key is all-zero (RZK)",
	ErrProgramming:                         "internal programming error",
	ErrNullCtx:                             "nil context",
	ErrNullConfigClient:                    "nil client configuration",
	ErrNullConfigServer:                    "nil server configuration",
	ErrZeroGroups:                          "configuration has zero groups",
	ErrLtkIsAllZeros:                       "a long-term key is all-zero",
	ErrInvalidHeaderType:                   "unknown or unsupported header type",
	ErrServerSidAssignedToClient:           "a client was configured with the server's source identifier",
	ErrSidsNotPresortedAscending:           "client source identifiers are not strictly ascending",
	ErrGapInSids:                           "client source identifiers have a gap",
	ErrSidTooLargeForHeaderType:            "source identifier does not fit the configured header type",
	ErrTooManyGroupsForHeaderType:          "too many groups for the configured header type",
	ErrZeroClients:                         "server configuration has zero clients",
	ErrTooManyClients:                      "too many clients for the group membership bitmap",
	ErrTooManyClientsForHeaderType:         "too many clients for the configured header type",
	ErrNullConfigClients:                   "nil client configuration array",
	ErrNullConfigGroups:                    "nil group configuration array",
	ErrGidsNotPresortedAscending:           "group identifiers are not strictly ascending",
	ErrGapInGids:                           "group identifiers have a gap",
	ErrMissingGid0:                         "missing broadcast group (gid 0)",
	ErrInvalidMaxCtrNonceDelay:             "invalid max counter nonce delay",
	ErrGidTooLargeForHeaderType:            "group identifier does not fit the configured header type",
	ErrTooLargeCtrNonceUpperLimit:          "invalid counter nonce upper limit",
	ErrInvalidDelayBetweenRenNotifications: "invalid delay between renewal notifications",
	ErrClientsBitmapZeroClients:            "group membership bitmap has no clients",
	ErrClientsBitmapUnknownSid:             "group membership bitmap references an unknown client",
	ErrClientsBitmapInvalidBroadcastGroup:  "broadcast group bitmap does not include every client",
	ErrNullStatesGroups:                    "nil group states array",
	ErrNullCurrentTimeFunc:                 "nil timestamp function",
	ErrNullTrngFunc:                        "nil TRNG function",
	ErrNullPdu:                             "nil PDU buffer",
	ErrNullSdu:                             "nil SDU buffer",
	ErrUnknownGroup:                        "unknown group identifier",
	ErrUnknownSource:                       "unknown source identifier",
	ErrSessionNotEstablished:               "no session established for this group",
	ErrTooLongSdu:                          "user data too long for this message type",
	ErrHandshakeOngoing:                    "a handshake is already in progress",
	ErrNoPotentialReceiver:                 "no client has requested this group's session yet",
	ErrRenewalOngoing:                      "a session renewal is already in progress",
	ErrInvalidPayloadType:                  "unknown or reserved payload type",
	ErrTooShortPduForHeader:                "PDU too short to contain the header",
	ErrTooShortPduForSadfd:                 "PDU too short to contain a secured application data message",
	ErrTooShortPduForReq:                   "PDU too short to contain a request message",
	ErrTooShortPduForRes:                   "PDU too short to contain a response message",
	ErrTooShortPduForRen:                   "PDU too short to contain a renewal notification",
	ErrTooLongCiphertext:                   "declared ciphertext length exceeds the PDU",
	ErrMsgIgnored:                          "message ignored: not addressed to this party or redundant",
	ErrReceivedZeroReqNonce:                "received request nonce is all-zero",
	ErrNotImplemented:                      "message type reserved but not implemented (SADTP)",
	ErrCannotGetCurrentTime:                "timestamp function failed",
	ErrCannotGenerateRandom:                "TRNG function failed",
	ErrCannotGenerateNonZeroRandom:         "TRNG could not produce a non-zero value in time",
	ErrNullFilename:                        "nil configuration file name",
	ErrCannotOpenConfigFile:                "cannot open configuration file",
	ErrUnexpectedEOF:                       "configuration file is shorter than expected",
	ErrInvalidFileMagicNumber:              "configuration file has the wrong magic number",
	ErrMallocFailed:                        "allocation failed",
}

func (e Err) Error() string {
	if d, ok := errDescriptions[e]; ok {
		return fmt.Sprintf("cbs: %s (code %d)", d, uint16(e))
	}
	return fmt.Sprintf("cbs: unknown error (code %d)", uint16(e))
}

// IsSecurityWarning reports whether e is one of the standard CBS security
// warnings (codes 1..15), as opposed to a configuration or infrastructure
// error.
func (e Err) IsSecurityWarning() bool {
	return e >= 1 && e <= 15
}
