// Command cbs-configgen compiles a human-authored *.cbs.ini source file
// (see pkg/config's ini.go for the expected layout) into the binary
// configuration file format a Server or Client loads at startup (spec
// section 6 / original_source hzl_ServerNew.c / hzl_ClientNew.c).
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	cbs "github.com/samsamfire/cbs"
	"github.com/samsamfire/cbs/pkg/config"
)

func main() {
	party := flag.String("party", "", "party kind to compile for: server or client")
	in := flag.String("in", "", "path to the *.cbs.ini source")
	out := flag.String("out", "", "path to write the compiled binary config")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: cbs-configgen -party server|client -in config.cbs.ini -out config.bin")
		os.Exit(2)
	}

	var data []byte
	switch *party {
	case "server":
		s, err := config.ParseServerINI(*in)
		if err != nil {
			log.Fatalf("[CONFIGGEN] parse: %v", err)
		}
		if cerr := s.Check(); cerr != cbs.OK {
			log.Fatalf("[CONFIGGEN] invalid server config: %v", cerr)
		}
		data = config.EncodeServer(s)
	case "client":
		c, err := config.ParseClientINI(*in)
		if err != nil {
			log.Fatalf("[CONFIGGEN] parse: %v", err)
		}
		if cerr := c.Check(); cerr != cbs.OK {
			log.Fatalf("[CONFIGGEN] invalid client config: %v", cerr)
		}
		data = config.EncodeClient(c)
	default:
		fmt.Fprintln(os.Stderr, `-party must be "server" or "client"`)
		os.Exit(2)
	}

	if err := os.WriteFile(*out, data, 0o600); err != nil {
		log.Fatalf("[CONFIGGEN] write %s: %v", *out, err)
	}
	log.Infof("[CONFIGGEN] wrote %d bytes to %s", len(data), *out)
}
