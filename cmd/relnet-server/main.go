// relnet-server is an echo server: every message a session sends is sent back to it with the
// same delivery type. It prints a session table every few seconds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	"github.com/gamevidea/relnet/internal/config"
	"github.com/gamevidea/relnet/internal/observability"
	"github.com/gamevidea/relnet/relnet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String("config", "", "Path to a YAML config file")
	listen := flag.String("listen", "", "Address to listen on, overrides the config")
	statsEvery := flag.Duration("stats", 5*time.Second, "Interval of the session table, 0 disables it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	if *listen != "" {
		cfg.Listen = *listen
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	opts := cfg.Options(logrus.NewEntry(logger))
	opts.Accept = func(s *relnet.Session, handshake []byte) (bool, string) {
		pterm.Info.Printfln("%v connected with handshake %q", s.RemoteAddr(), handshake)
		return true, ""
	}
	opts.OnMessage = func(s *relnet.Session, msg *relnet.Message) {
		index := msg.Channel
		if msg.Delivery != relnet.Sequenced {
			index = 0
		}

		if err := s.Send(relnet.NewMessage(msg.Body), msg.Delivery, index); err != nil {
			logger.WithFields(logrus.Fields{"remote": s.RemoteAddr().String()}).WithError(err).Warn("Failed to echo message")
		}
	}

	server, err := relnet.Listen(cfg.Listen, opts)
	if err != nil {
		pterm.Error.Printfln("listen on %s: %v", cfg.Listen, err)
		os.Exit(1)
	}

	pterm.Success.Printfln("Listening on %v", server.LocalAddr())

	var ticker <-chan time.Time
	if *statsEvery > 0 {
		t := time.NewTicker(*statsEvery)
		defer t.Stop()
		ticker = t.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker:
			printSessions(server)
		}
	}

	pterm.Info.Println("Shutting down")
	if err := server.Close(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// printSessions renders the sessions of the server as a table.
func printSessions(server *relnet.Server) {
	sessions := server.Sessions()
	if len(sessions) == 0 {
		return
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].RemoteAddr().String() < sessions[j].RemoteAddr().String()
	})

	data := pterm.TableData{{"Remote", "State", "MTU", "RTT"}}
	for _, s := range sessions {
		rtt := "-"
		if ms := s.RoundTrip(); ms >= 0 {
			rtt = fmt.Sprintf("%d ms", ms)
		}

		data = append(data, []string{s.RemoteAddr().String(), s.State().String(), fmt.Sprint(s.MTU()), rtt})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
