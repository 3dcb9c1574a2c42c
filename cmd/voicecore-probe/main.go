// Command voicecore-probe runs the TURN Allocate handshake and prints the
// relayed address it gets back, for diagnosing TURN server reachability and
// credentials. It opens a session with no peers registered and closes it as
// soon as the address is printed; no audio or peer traffic is involved.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Delta-Zero-Games/llas"
	"github.com/Delta-Zero-Games/llas/internal/turnclient"
)

func main() {
	var (
		server     = pflag.StringP("server", "s", "", "TURN server address, e.g. turn:example.com:3478")
		username   = pflag.StringP("username", "u", "", "TURN username")
		credential = pflag.StringP("credential", "c", "", "TURN credential")
		realm      = pflag.StringP("realm", "r", "", "TURN realm")
		timeout    = pflag.DurationP("timeout", "t", 5*time.Second, "Handshake timeout")
		useEnv     = pflag.Bool("env", false, "Read TURN_SERVER_URL / TURN_USERNAME / TURN_CREDENTIAL / TURN_REALM instead of flags")
		help       = pflag.Bool("help", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - allocate a TURN relayed address and print it.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	var cfg llas.TurnConfig
	if *useEnv {
		var err error
		cfg, err = llas.LoadTurnConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicecore-probe: %v\n", err)
			os.Exit(1)
		}
	} else {
		addr, err := llas.NormalizeTurnServerAddr(*server)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicecore-probe: %v\n", err)
			os.Exit(1)
		}
		cfg = llas.TurnConfig{
			ServerAddr: addr,
			Username:   *username,
			Credential: *credential,
			Realm:      *realm,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sess, err := llas.Open(ctx, cfg)
	if err != nil {
		var allocErr *turnclient.AllocationError
		if errors.As(err, &allocErr) {
			fmt.Fprintf(os.Stderr, "voicecore-probe: allocation rejected, code %d\n", allocErr.Code)
			os.Exit(allocErr.Code % 256)
		}
		fmt.Fprintf(os.Stderr, "voicecore-probe: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	fmt.Println(sess.LocalRelayedAddr().String())
}
