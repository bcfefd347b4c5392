// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/braise/pkg/amorce"
	"github.com/Thermoquad/braise/pkg/icusim"
)

var (
	serveListen   string
	serveWSPath   string
	serveStateDir string
	servePolicy   string
	serveNoAuto   bool
	serveExtmem   bool
	serveOnStdio  bool
)

// External memory bank mapped with --extmem, matching an FSMC NOR bank.
const (
	extMemBase uint32 = 0x60000000
	extMemSize uint32 = 1024 * 1024
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a simulated ICU bootloader",
	Long: `Host a simulated ICU running the bootloader shell.

The simulator models the device flash, RAM regions, option bytes and
restarts, so every braise command (and any other shell client) can be
exercised without hardware. State survives restarts within one serve run;
with --state-dir it also survives across runs, like real flash.

Modes:
  Serial (--port):     serve sessions on a serial device. Pair with a
                       pty (e.g. socat) to test serial tooling end to end.
  WebSocket (--listen): accept WebSocket connections, one session at a
                       time. With --username, HTTP Basic auth is enforced
                       against the BRAISE_PASSWORD environment variable.
  Stdio (--stdio):     serve a single session on stdin/stdout, for piping
                       scripted command exchanges through the simulator.

Examples:
  braise serve --listen :8765
  braise probe --url ws://localhost:8765/shell

  braise serve --port /dev/pts/3 --state-dir ~/.braise/icu0`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "WebSocket listen address (e.g. :8765)")
	serveCmd.Flags().StringVar(&serveWSPath, "path", "/shell", "WebSocket endpoint path")
	serveCmd.Flags().StringVar(&serveStateDir, "state-dir", "", "Directory for persistent device state")
	serveCmd.Flags().StringVar(&servePolicy, "checksum-policy", "warn", "Chunk checksum policy: warn or reject")
	serveCmd.Flags().BoolVar(&serveNoAuto, "no-auto-activate", false, "Skip activation of staged images on boot")
	serveCmd.Flags().BoolVar(&serveExtmem, "extmem", false, "Map an external memory bank at 0x60000000")
	serveCmd.Flags().BoolVar(&serveOnStdio, "stdio", false, "Serve a single session on stdin/stdout")
}

func runServe(cmd *cobra.Command, args []string) error {
	modes := 0
	if serveListen != "" {
		modes++
	}
	if portName != "" {
		modes++
	}
	if serveOnStdio {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of --listen, --port or --stdio must be specified")
	}

	policy := amorce.PolicyWarn
	switch servePolicy {
	case "warn":
	case "reject":
		policy = amorce.PolicyReject
	default:
		return fmt.Errorf("invalid checksum policy %q (use warn or reject)", servePolicy)
	}

	device := icusim.New()
	if serveExtmem {
		device.AddExternalBank(extMemBase, extMemSize)
	}
	if serveStateDir != "" {
		loaded, err := device.Restore(serveStateDir)
		if err != nil {
			return fmt.Errorf("failed to restore device state: %v", err)
		}
		if loaded {
			log.Infof("restored device state from %s", serveStateDir)
		}
	}

	device.OnRestart = func() {
		log.Infof("device restarted (%d total)", device.Restarts())
	}
	device.OnLed = func(led amorce.Led, on bool) {
		state := "off"
		if on {
			state = "on"
		}
		log.Debugf("led %v %s", led, state)
	}

	opts := []amorce.Option{
		amorce.WithLogger(log.StandardLogger()),
		amorce.WithChecksumPolicy(policy),
		amorce.WithAutoActivate(!serveNoAuto),
	}
	if serveExtmem {
		opts = append(opts, amorce.WithExternalMemory(extMemBase, extMemSize))
	}

	if serveListen != "" {
		return serveWebSocket(device, opts)
	}
	if serveOnStdio {
		return serveStdio(device, opts)
	}
	return serveSerial(device, opts)
}

// stdioConnection carries the shell stream on the process's own stdin and
// stdout. Stdout is the wire, so nothing else may print to it.
type stdioConnection struct{}

func (c stdioConnection) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (c stdioConnection) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (c stdioConnection) Close() error                { return nil }

// serveStdio runs exactly one session: stdin cannot be reopened after the
// peer hangs up, so a session end is the end of the run.
func serveStdio(device *icusim.Device, opts []amorce.Option) error {
	session, err := amorce.NewSession(stdioConnection{}, device.Hardware(), opts...)
	if err != nil {
		return err
	}
	runErr := session.Run()
	saveState(device)
	if runErr != nil {
		return fmt.Errorf("session failed: %v", runErr)
	}
	log.Infof("session over: %s", session.Stats())
	return nil
}

// saveState persists the device if a state directory was configured.
func saveState(device *icusim.Device) {
	if serveStateDir == "" {
		return
	}
	if err := device.Save(serveStateDir); err != nil {
		log.Errorf("failed to save device state: %v", err)
	}
}

// serveSerial runs back-to-back sessions on one serial port. Each session
// end is a device reboot: the port is reopened and the next session greets
// the host anew, exactly like a board falling back into its bootloader.
// Reopening also retires the previous session's reader before a new one
// starts on the same port.
func serveSerial(device *icusim.Device, opts []amorce.Option) error {
	fmt.Printf("Braise - Simulated ICU\n")
	fmt.Printf("Serving on: %s @ %d baud\n", portName, baudRate)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return err
		}
		session, err := amorce.NewSession(conn, device.Hardware(), opts...)
		if err != nil {
			conn.Close()
			return err
		}
		runErr := session.Run()
		conn.Close()
		saveState(device)
		if runErr != nil {
			return fmt.Errorf("session failed: %v", runErr)
		}
		log.Infof("session over: %s", session.Stats())

		// Brief pause between boots, like a real reset cycle.
		time.Sleep(100 * time.Millisecond)
	}
}

// serveWebSocket accepts sessions over WebSocket, one at a time; a second
// connection while one is active is turned away.
func serveWebSocket(device *icusim.Device, opts []amorce.Option) error {
	var busy sync.Mutex
	upgrader := websocket.Upgrader{
		// The bench tool serves local networks; origin checks add nothing.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	expectedPassword := os.Getenv("BRAISE_PASSWORD")

	http.HandleFunc(serveWSPath, func(w http.ResponseWriter, r *http.Request) {
		if wsUsername != "" {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(wsUsername)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(expectedPassword)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="braise"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		if !busy.TryLock() {
			http.Error(w, "device busy", http.StatusServiceUnavailable)
			return
		}
		defer busy.Unlock()

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("upgrade failed: %v", err)
			return
		}
		conn := &WebSocketConnection{conn: wsConn}
		defer conn.Close()

		log.Infof("session from %s", r.RemoteAddr)
		session, err := amorce.NewSession(conn, device.Hardware(), opts...)
		if err != nil {
			log.Errorf("session setup failed: %v", err)
			return
		}
		if err := session.Run(); err != nil {
			log.Warnf("session failed: %v", err)
		} else {
			log.Infof("session over: %s", session.Stats())
		}
		saveState(device)
	})

	fmt.Printf("Braise - Simulated ICU\n")
	fmt.Printf("Serving on: ws://%s%s\n", serveListen, serveWSPath)
	if wsUsername != "" {
		fmt.Printf("Auth: HTTP Basic (user %s)\n", wsUsername)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return http.ListenAndServe(serveListen, nil)
}
