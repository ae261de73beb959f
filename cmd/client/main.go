package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/StoreStation/vnet/pkg/metrics"
	"github.com/StoreStation/vnet/pkg/netcode/client"
	"github.com/StoreStation/vnet/pkg/protocol"
	"github.com/StoreStation/vnet/pkg/voxel"
)

// main is a headless client harness: it connects, drives a no-op input
// stream at the tick rate, and prints connection/chunk/chat events as they
// arrive. It exists to exercise pkg/netcode/client outside of a renderer.
func main() {
	address := flag.String("address", "127.0.0.1:28015", "Server address to connect to")
	name := flag.String("name", "headless", "Player name to present at handshake")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("role", "client").Logger()

	reg := voxel.NewRegistry()
	reg.MarkSolid(voxel.Block(1))
	reg.MarkFluid(voxel.Block(2))
	world := voxel.NewWorld(reg)

	mx := metrics.NewClient()
	c := client.New(client.DefaultConfig(*name), world, log, mx)

	if err := c.Connect(*address); err != nil {
		log.Fatal().Err(err).Msg("connect failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	seq := uint32(0)
	for {
		select {
		case <-sigCh:
			log.Info().Msg("disconnecting (signal received)")
			c.Disconnect("client exiting")
			return
		case <-ticker.C:
			c.Update(time.Second / 60)
			c.SendInput(protocol.PlayerInput{
				Sequence:  seq,
				DeltaTime: 1.0 / 60.0,
			})
			seq++
		case e := <-c.Events():
			logClientEvent(log, e)
		}
	}
}

func logClientEvent(log zerolog.Logger, e client.Event) {
	switch e.Type {
	case client.EventConnectionEstablished:
		log.Info().Uint64("player_id", e.PlayerID).Msg("connection established")
	case client.EventConnectionLost:
		log.Warn().Bool("timeout", e.WasTimeout).Msg("connection lost")
	case client.EventPlayerJoined:
		log.Info().Uint64("player_id", e.PlayerID).Str("name", e.PlayerName).Msg("player joined")
	case client.EventPlayerLeft:
		log.Info().Uint64("player_id", e.PlayerID).Msg("player left")
	case client.EventChunkReceived:
		log.Debug().Str("chunk", e.ChunkPos.String()).Msg("chunk received")
	case client.EventChatReceived:
		log.Info().Str("from", e.ChatSender).Str("text", e.ChatText).Msg("chat")
	}
}
