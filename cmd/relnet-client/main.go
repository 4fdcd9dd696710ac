// relnet-client connects to a relnet server and sends every line read from stdin as a reliable
// message. Received messages are printed as they arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
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
	server := flag.String("server", "", "Server address, overrides the config")
	deliveryFlag := flag.String("delivery", "reliable", "Delivery type: unreliable, sequenced or reliable")
	channelFlag := flag.Uint("channel", 0, "Sequenced channel index, 0-254")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	if *server != "" {
		cfg.Server = *server
	}

	delivery, ok := parseDelivery(*deliveryFlag)
	if !ok || *channelFlag > 254 {
		pterm.Error.Println("invalid -delivery or -channel")
		os.Exit(1)
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	opts := cfg.Options(logrus.NewEntry(logger))
	opts.OnMessage = func(s *relnet.Session, msg *relnet.Message) {
		pterm.Info.Printfln("< %s", msg.Body)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := relnet.Dial(dialCtx, cfg.Server, opts, []byte(cfg.Handshake))
	cancel()
	if err != nil {
		pterm.Error.Printfln("connect to %s: %v", cfg.Server, err)
		os.Exit(1)
	}

	pterm.Success.Printfln("Connected to %s, mtu %d", cfg.Server, client.Session().MTU())

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}

			if client.State() != relnet.Connected {
				pterm.Warning.Printfln("Disconnected: %s", client.Session().Cause())
				break loop
			}

			if err := client.Send(relnet.NewMessage([]byte(line)), delivery, uint8(*channelFlag)); err != nil {
				pterm.Error.Println(err)
			}
		}
	}

	if err := client.Close(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	pterm.Info.Printfln("Closed: %s", client.Session().Cause())
}

func parseDelivery(s string) (relnet.DeliveryType, bool) {
	switch s {
	case "unreliable":
		return relnet.Unreliable, true
	case "sequenced":
		return relnet.Sequenced, true
	case "reliable":
		return relnet.Reliable, true
	default:
		return 0, false
	}
}
