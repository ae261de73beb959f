package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/StoreStation/vnet/pkg/metrics"
	"github.com/StoreStation/vnet/pkg/netcode/server"
	"github.com/StoreStation/vnet/pkg/physics"
	"github.com/StoreStation/vnet/pkg/voxel"
)

func main() {
	address := flag.String("address", ":28015", "UDP address to listen on")
	seed := flag.Int64("seed", 0, "World seed reported to clients in the handshake response")
	renderDistance := flag.Int("render-distance", 8, "Chunk streaming radius, in chunks")
	metricsAddr := flag.String("metrics-address", ":9100", "Prometheus metrics listen address")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("role", "server").Logger()

	reg := voxel.NewRegistry()
	reg.MarkSolid(voxel.Block(1))
	reg.MarkFluid(voxel.Block(2))
	world := voxel.NewWorld(reg)

	config := server.DefaultConfig()
	config.Address = *address
	config.WorldSeed = *seed
	config.RenderDistance = *renderDistance
	config.SpawnPoint = physics.Vec3{X: 0, Y: 80, Z: 0}

	mx := metrics.NewServer()
	go serveMetrics(*metricsAddr, mx, log)

	srv := server.New(config, world, reg, log, mx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down server (signal received)")
		srv.Stop()
	}()

	log.Info().Str("address", *address).Msg("vnet server starting")
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}

func serveMetrics(addr string, mx *metrics.Server, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mx.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Msg("metrics server exited")
	}
}
