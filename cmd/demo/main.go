package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/puntoylana/offlinecache/cmd/demo/handlers"
	"github.com/puntoylana/offlinecache/pkg/offlinecache"
)

func main() {
	// Command-line flags
	port := flag.String("port", "8080", "Port to run the server on")
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	printBanner()

	config := offlinecache.NewConfig()
	if *configFile != "" {
		log.Println("Loading configuration from:", *configFile)
		loaded, err := offlinecache.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		config = loaded
	}
	config.Listen = ":" + *port
	config.Origin = "http://localhost:" + *port
	config.LogLevel = "debug"

	shop := handlers.NewStorefront()

	svc, err := offlinecache.New(
		offlinecache.WithConfig(config),
		offlinecache.WithNetwork(shop),
		offlinecache.WithLogger(offlinecache.NewLogger(os.Stderr, config)),
	)
	if err != nil {
		log.Fatalf("Failed to create offline cache: %v", err)
	}
	defer svc.Close()

	if err := svc.Start(context.Background()); err != nil {
		log.Fatalf("Failed to install cache %s: %v", config.Version, err)
	}
	slog.Info("cache installed", "cache", svc.Registration().Active().CacheName())

	mux := http.NewServeMux()
	mux.HandleFunc("/demo/toggle", shop.Toggle)
	mux.Handle("/", svc.Handler(nil))

	addr := config.Listen
	log.Printf("Starting server on http://localhost%s", addr)
	log.Println("Press Ctrl+C to stop")
	log.Println("")
	log.Println("Try these commands:")
	log.Printf("  curl -H 'Sec-Fetch-Mode: navigate' http://localhost%s/catalogo\n", addr)
	log.Printf("  curl -X POST http://localhost%s/demo/toggle\n", addr)
	log.Printf("  curl -i -H 'Sec-Fetch-Mode: navigate' http://localhost%s/catalogo\n", addr)
	log.Printf("  curl -i http://localhost%s/api/v1/orders\n", addr)
	log.Printf("  curl -X POST -d '{\"title\":\"Oferta\",\"url\":\"/catalogo\"}' http://localhost%s/_sw/push\n", addr)
	log.Println("")
	log.Printf("Dashboard: http://localhost%s/_sw/dashboard", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func printBanner() {
	fmt.Println(`
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   Punto y Lana - Offline Cache Demo                   ║
║                                                       ║
║   Network-first pages | Versioned caches              ║
║   POST /demo/toggle to take the storefront offline    ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝`)
}
