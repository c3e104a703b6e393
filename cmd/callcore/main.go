// Package main is a headless line-driven call client.
//
// Configuration comes from .env files and CALLCORE_* variables, overridden
// by flags. Commands are read from standard input, one per line, and events
// are printed as they arrive.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore"
	"github.com/opd-ai/callcore/audio"
	"github.com/opd-ai/callcore/config"
	"github.com/opd-ai/callcore/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "callcore:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env", ".env", "Environment file to load before reading CALLCORE_* variables")
	tcpHost := flag.String("tcp-host", "", "Signaling server host (overrides CALLCORE_TCP_HOST)")
	tcpPort := flag.Uint("tcp-port", 0, "Signaling server port (overrides CALLCORE_TCP_PORT)")
	udpHost := flag.String("udp-host", "", "Media relay host (overrides CALLCORE_UDP_HOST)")
	udpPort := flag.Uint("udp-port", 0, "Media relay port (overrides CALLCORE_UDP_PORT)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "Rotating log file (default: stderr)")
	decoder := flag.String("decoder", "", "Voice decoder: opus or silk")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	tcp, err := portFlag("tcp-port", *tcpPort)
	if err != nil {
		return err
	}
	udp, err := portFlag("udp-port", *udpPort)
	if err != nil {
		return err
	}
	applyFlags(&cfg, *tcpHost, *udpHost, tcp, udp, *logLevel, *logFile, *decoder)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(cfg.Log); err != nil {
		return err
	}
	defer logging.Shutdown()

	opts := callcore.NewOptions()
	opts.AudioConfig = cfg.Audio()
	opts.DialTimeout = cfg.DialTimeout
	opts.KeepaliveTimeout = cfg.KeepaliveTimeout
	opts.ReconnectInterval = cfg.ReconnectInterval
	opts.OperationTimeout = cfg.OperationTimeout
	opts.PrivateKeyHex = cfg.PrivateKeyHex

	core, err := callcore.New(opts)
	if err != nil {
		return err
	}
	defer core.Close()

	out := os.Stdout
	if err := core.Start(cfg.TCPHost, cfg.UDPHost, cfg.TCPPort, cfg.UDPPort, &printer{out: out}); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "main.run",
		"server":   cfg.TCPAddr(),
		"session":  core.Session(),
	}).Info("Client ready")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-signals:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := execute(core, line, out); quit {
				return nil
			}
		}
	}
}

// portFlag narrows a port flag, rejecting values that do not fit in 16 bits.
func portFlag(name string, v uint) (uint16, error) {
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("-%s %d: port out of range", name, v)
	}
	return uint16(v), nil
}

func applyFlags(cfg *config.Config, tcpHost, udpHost string, tcpPort, udpPort uint16, level, file, decoder string) {
	if tcpHost != "" {
		cfg.TCPHost = tcpHost
	}
	if udpHost != "" {
		cfg.UDPHost = udpHost
	}
	if tcpPort != 0 {
		cfg.TCPPort = tcpPort
	}
	if udpPort != 0 {
		cfg.UDPPort = udpPort
	}
	if level != "" {
		cfg.Log.Level = level
	}
	if file != "" {
		cfg.Log.File = file
	}
	if decoder != "" {
		cfg.Decoder = audio.DecoderKind(decoder)
	}
}

// commander is the part of callcore.Core the command loop uses.
type commander interface {
	Authorize(nickname string) error
	Logout() error
	StartOutgoingCall(nickname string) error
	StopOutgoingCall() error
	AcceptCall(nickname string) error
	DeclineCall(nickname string) error
	EndCall() error
	MuteMicrophone(muted bool)
	MuteSpeaker(muted bool)
	SetInputVolume(percent int)
	SetOutputVolume(percent int)
	InputVolume() int
	OutputVolume() int
	InputDevices() ([]audio.DeviceInfo, error)
	OutputDevices() ([]audio.DeviceInfo, error)
	PendingOperations() []callcore.UserOperation
}

const usage = `commands:
  auth <nick>           authorize
  logout                end the session
  call <nick>           start an outgoing call
  cancel                stop the outgoing call
  accept <nick>         accept an incoming call
  decline <nick>        decline an incoming call
  end                   end the active call
  mute-mic on|off       mute the microphone
  mute-speaker on|off   mute the speaker
  volume-in <0-200>     microphone volume in percent
  volume-out <0-200>    speaker volume in percent
  devices               list audio devices
  pending               list requests awaiting a result
  quit                  exit`

// execute runs one command line and reports whether to quit.
func execute(c commander, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	arg := func() (string, bool) {
		if len(args) != 1 {
			fmt.Fprintf(out, "%s: expected one argument\n", cmd)
			return "", false
		}
		return args[0], true
	}
	report := func(err error) {
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", cmd, err)
			return
		}
		fmt.Fprintf(out, "%s: sent\n", cmd)
	}

	switch cmd {
	case "auth":
		if nick, ok := arg(); ok {
			report(c.Authorize(nick))
		}
	case "logout":
		report(c.Logout())
	case "call":
		if nick, ok := arg(); ok {
			report(c.StartOutgoingCall(nick))
		}
	case "cancel":
		report(c.StopOutgoingCall())
	case "accept":
		if nick, ok := arg(); ok {
			report(c.AcceptCall(nick))
		}
	case "decline":
		if nick, ok := arg(); ok {
			report(c.DeclineCall(nick))
		}
	case "end":
		report(c.EndCall())
	case "mute-mic", "mute-speaker":
		v, ok := arg()
		if !ok {
			break
		}
		if v != "on" && v != "off" {
			fmt.Fprintf(out, "%s: expected on or off\n", cmd)
			break
		}
		if cmd == "mute-mic" {
			c.MuteMicrophone(v == "on")
		} else {
			c.MuteSpeaker(v == "on")
		}
		fmt.Fprintf(out, "%s: %s\n", cmd, v)
	case "volume-in", "volume-out":
		v, ok := arg()
		if !ok {
			break
		}
		percent, err := strconv.Atoi(v)
		if err != nil {
			fmt.Fprintf(out, "%s: %q is not a number\n", cmd, v)
			break
		}
		if cmd == "volume-in" {
			c.SetInputVolume(percent)
			fmt.Fprintf(out, "%s: %d%%\n", cmd, c.InputVolume())
		} else {
			c.SetOutputVolume(percent)
			fmt.Fprintf(out, "%s: %d%%\n", cmd, c.OutputVolume())
		}
	case "devices":
		printDevices(c, out)
	case "pending":
		for _, op := range c.PendingOperations() {
			fmt.Fprintln(out, "pending:", op)
		}
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(out, usage)
	default:
		fmt.Fprintf(out, "unknown command %q, try help\n", cmd)
	}
	return false
}

func printDevices(c commander, out io.Writer) {
	inputs, err := c.InputDevices()
	if err != nil {
		fmt.Fprintln(out, "devices:", err)
		return
	}
	outputs, err := c.OutputDevices()
	if err != nil {
		fmt.Fprintln(out, "devices:", err)
		return
	}
	for _, d := range inputs {
		fmt.Fprintf(out, "input  %d %s%s\n", d.Index, d.Name, defaultMark(d.IsDefaultInput))
	}
	for _, d := range outputs {
		fmt.Fprintf(out, "output %d %s%s\n", d.Index, d.Name, defaultMark(d.IsDefaultOutput))
	}
}

func defaultMark(isDefault bool) string {
	if isDefault {
		return " (default)"
	}
	return ""
}
