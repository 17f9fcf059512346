// Command cbs-demo wires one Server and two Clients to an in-process CAN FD
// bus (pkg/transport) and drives the handshakes and secured exchanges,
// logging every step. The Server sends a REN only when the Group's session
// expires (counter-nonce upper limit or session duration reached); the demo
// never forces a renewal. It is a demonstration and integration point,
// not part of the core protocol: production deployments load their
// configuration from the binary file cmd/cbs-configgen produces and carry
// PDUs over a real CAN FD driver instead of pkg/transport's loopback.
package main

import (
	"flag"
	"time"

	log "github.com/sirupsen/logrus"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/client"
	"github.com/samsamfire/cbs/pkg/config"
	"github.com/samsamfire/cbs/pkg/crypto"
	"github.com/samsamfire/cbs/pkg/message"
	"github.com/samsamfire/cbs/pkg/server"
	"github.com/samsamfire/cbs/pkg/transport"
)

const demoGid cbs.Gid = 0
const headerType uint8 = 1

func newHash() crypto.Hash { return &crypto.Blake2XOF{} }
func newAEAD() crypto.AEAD { return &crypto.ChaChaAEAD{} }

func fixedLtk(b byte) [cbs.LtkLen]byte {
	var k [cbs.LtkLen]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func demoServerConfig() *config.Server {
	return &config.Server{
		Config: config.ServerConfig{HeaderType: headerType},
		Clients: []config.ServerClientConfig{
			{Sid: 1, Ltk: fixedLtk(0x11)},
			{Sid: 2, Ltk: fixedLtk(0x22)},
		},
		Groups: []config.GroupConfig{
			{
				Gid:                                demoGid,
				MaxCtrNonceDelayMsgs:                16,
				CtrNonceUpperLimit:                  64, // small, so the demo lives long enough to see a REN
				SessionDurationMillis:               8_000,
				DelayBetweenRenNotificationsMillis:  500,
				MaxSilenceIntervalMillis:            5_000,
				ClientSidsInGroupBitmap:             0b11,
			},
		},
	}
}

func demoClientConfig(sid cbs.Sid, ltkByte byte) *config.Client {
	return &config.Client{
		Config: config.ClientConfig{HeaderType: headerType, Sid: sid, Ltk: fixedLtk(ltkByte)},
		Groups: []config.GroupConfig{
			{
				Gid:                                demoGid,
				MaxCtrNonceDelayMsgs:                16,
				CtrNonceUpperLimit:                  64,
				SessionDurationMillis:               8_000,
				DelayBetweenRenNotificationsMillis:  500,
				MaxSilenceIntervalMillis:            5_000,
			},
		},
	}
}

// demoClock is a shared wall-clock-derived millisecond Timestamp source: the
// demo has no real CAN FD hardware, so every Party reads the same process
// clock instead of exchanging a physical notion of time.
type demoClock struct{ start time.Time }

func (c *demoClock) now() (cbs.Timestamp, cbs.Err) {
	return cbs.Timestamp(time.Since(c.start).Milliseconds()), cbs.OK
}

func (c *demoClock) io() cbs.Io {
	return cbs.Io{TRNG: crypto.TRNG, Now: c.now}
}

// inbox forwards frames delivered by the Bus onto a channel so the owning
// goroutine processes them one at a time, in arrival order, instead of
// handling them on the sender's goroutine.
type inbox struct{ ch chan transport.Frame }

func newInbox() *inbox { return &inbox{ch: make(chan transport.Frame, 32)} }

func (ib *inbox) Handle(f transport.Frame) {
	select {
	case ib.ch <- f:
	default:
		log.Warnf("[DEMO] inbox full, dropping frame id=%d", f.ID)
	}
}

func runServer(bus *transport.Bus, clk *demoClock, done <-chan struct{}) {
	srv, err := server.New(demoServerConfig(), clk.io())
	if err != cbs.OK {
		log.Fatalf("[DEMO][SERVER] init: %v", err)
	}
	ib := newInbox()
	cancel := bus.Subscribe(ib)
	defer cancel()

	broadcast := time.NewTicker(700 * time.Millisecond)
	defer broadcast.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-ib.ch:
			now, _ := clk.now()
			reaction, sdu, perr := srv.ProcessReceived(frame.Bytes(), frame.ID, now)
			if perr != cbs.OK {
				log.Debugf("[DEMO][SERVER] rx ignored: %v", perr)
				continue
			}
			if sdu != nil && sdu.IsForUser {
				log.Infof("[DEMO][SERVER] delivered from sid=%d (secured=%v): %q", sdu.Sid, sdu.WasSecured, sdu.Bytes())
			}
			if reaction != nil {
				bus.Send(transport.NewFrame(uint32(cbs.ServerSid), reaction))
			}
		case <-broadcast.C:
			out, perr := srv.BuildSecuredFd(demoGid, []byte("server heartbeat"))
			if perr == cbs.OK {
				bus.Send(transport.NewFrame(uint32(cbs.ServerSid), out))
			} else if perr != cbs.ErrNoPotentialReceiver {
				log.Warnf("[DEMO][SERVER] broadcast failed: %v", perr)
			}
		}
	}
}

func runClient(bus *transport.Bus, clk *demoClock, sid cbs.Sid, ltkByte byte, done <-chan struct{}) {
	cl, err := client.New(demoClientConfig(sid, ltkByte), clk.io())
	if err != cbs.OK {
		log.Fatalf("[DEMO][CLIENT %d] init: %v", sid, err)
	}
	parser := message.Parser{HeaderType: headerType, NewHash: newHash, NewAEAD: newAEAD}
	ib := newInbox()
	cancel := bus.Subscribe(ib)
	defer cancel()

	now, _ := clk.now()
	if out, rerr := cl.BuildRequest(demoGid, now); rerr == cbs.OK {
		bus.Send(transport.NewFrame(uint32(sid), out))
	}

	chat := time.NewTicker(time.Duration(900+100*int(sid)) * time.Millisecond)
	defer chat.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-ib.ch:
			handleClientFrame(cl, &parser, clk, sid, frame, bus)
		case <-chat.C:
			now, _ := clk.now()
			out, perr := cl.BuildSecuredFd(demoGid, []byte("hello from client"))
			if perr == cbs.OK {
				bus.Send(transport.NewFrame(uint32(sid), out))
			} else if perr == cbs.ErrSessionNotEstablished {
				if req, rerr := cl.BuildRequest(demoGid, now); rerr == cbs.OK {
					bus.Send(transport.NewFrame(uint32(sid), req))
				}
			}
		}
	}
}

func handleClientFrame(cl *client.Client, parser *message.Parser, clk *demoClock, sid cbs.Sid, frame transport.Frame, bus *transport.Bus) {
	hdr, payload, err := parser.ParseHeader(frame.Bytes())
	if err != cbs.OK {
		return
	}
	now, _ := clk.now()
	switch hdr.Pty {
	case cbs.PtyRES:
		if perr := cl.ProcessReceivedResponse(payload, hdr, now); perr == cbs.OK {
			log.Infof("[DEMO][CLIENT %d] session established", sid)
		} else {
			log.Debugf("[DEMO][CLIENT %d] RES ignored: %v", sid, perr)
		}
	case cbs.PtyREN:
		reaction, perr := cl.ProcessReceivedRenewal(payload, hdr, now)
		if perr != cbs.OK {
			log.Debugf("[DEMO][CLIENT %d] REN ignored: %v", sid, perr)
			return
		}
		log.Infof("[DEMO][CLIENT %d] renewal started, re-requesting STK", sid)
		bus.Send(transport.NewFrame(uint32(sid), reaction))
	case cbs.PtySADFD:
		sdu, perr := cl.ProcessReceivedSecuredFd(payload, hdr, now, frame.ID)
		if perr != cbs.OK {
			log.Debugf("[DEMO][CLIENT %d] SADFD ignored: %v", sid, perr)
			return
		}
		log.Infof("[DEMO][CLIENT %d] received from sid=%d: %q", sid, sdu.Sid, sdu.Bytes())
	}
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	duration := flag.Duration("duration", 5*time.Second, "how long to run the demo")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	bus := transport.NewBus()
	clk := &demoClock{start: time.Now()}
	done := make(chan struct{})

	go runServer(bus, clk, done)
	go runClient(bus, clk, 1, 0x11, done)
	go runClient(bus, clk, 2, 0x22, done)

	time.Sleep(*duration)
	close(done)
	bus.Close()
	log.Infof("[DEMO] shutting down after %s", *duration)
}
