// cmd/actornode is the main entrypoint for one actor runtime process.
//
// Configuration is via flags and a .env file so a single binary can serve
// any role in the cluster.
//
// Example — single node with memory storage:
//
//	./actornode --name worker-1 --port 8000
//
// Example — durable node pointed at a registry node:
//
//	./actornode --name worker-1 --port 8000 --storage-dir /var/actorway \
//	            --registry registry=http://localhost:9000
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/actorway/actorway/internal/actor"
	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/node"
	"github.com/actorway/actorway/internal/registry"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	name := flag.String("name", "", "Node name (defaults to actor-<port>)")
	host := flag.String("host", "0.0.0.0", "Listen host")
	port := flag.Int("port", 8000, "Listen port")
	subpath := flag.String("subpath", "", "URL subpath all endpoints are mounted under")
	token := flag.String("token", os.Getenv("ACTORWAY_TOKEN"), "Bearer token required on every request")
	storageDir := flag.String("storage-dir", "", "Directory for the durable write-ahead log (empty = in-memory storage)")
	registryAddr := flag.String("registry", "", "name=url of the registry node's own network")
	ackTimeout := flag.Duration("ack-timeout", 180*time.Second, "How long an unacked outbox entry waits before retry")
	maxRetry := flag.Int("max-retry-count", 3, "Retries before an outbox entry is recorded as failed")
	flag.Parse()

	log := actorlog.New("main")

	var registryNode *registry.NodeSpec
	if *registryAddr != "" {
		parts := strings.SplitN(*registryAddr, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "invalid --registry value %q: expected name=url\n", *registryAddr)
			os.Exit(2)
		}
		registryNode = &registry.NodeSpec{Name: parts[0], Networks: []registry.Network{{Name: "default", URL: parts[1]}}}
	}

	n, err := node.New(node.Config{
		Name:          *name,
		Host:          *host,
		Port:          *port,
		Subpath:       *subpath,
		Token:         *token,
		StorageDir:    *storageDir,
		RegistryNode:  registryNode,
		AckTimeout:    *ackTimeout,
		MaxRetryCount: *maxRetry,
	}, demoActors())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build node")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("node exited with error")
	}
}

// demoActors registers nothing beyond the builtin actor.health action; a
// real deployment links in its own package of actor.Descriptor values
// here instead.
func demoActors() []actor.Descriptor {
	return nil
}
