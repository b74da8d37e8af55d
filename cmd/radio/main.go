// Command radio runs the headless player/host/client (§ OVERVIEW): a local
// shuffled library player that can optionally broadcast its current track
// to the LAN (radio host, C7) or tune in to a peer already broadcasting
// (radio client, C8), discovering peers by subnet probe (C9).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lanwave/radio/internal/audio"
	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/internal/download"
	"github.com/lanwave/radio/internal/library"
	"github.com/lanwave/radio/internal/lyrics"
	"github.com/lanwave/radio/internal/orchestrator"
	"github.com/lanwave/radio/internal/platform"
	"github.com/lanwave/radio/internal/playlist"
	radioclient "github.com/lanwave/radio/internal/radio/client"
	radiohost "github.com/lanwave/radio/internal/radio/host"
	"github.com/lanwave/radio/internal/radio/scanner"
	"github.com/lanwave/radio/internal/recommend"
	"github.com/lanwave/radio/internal/search"
	"github.com/lanwave/radio/internal/shuffler"
	"github.com/lanwave/radio/internal/storage"
	"github.com/lanwave/radio/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	debug      = flag.Bool("debug", false, "Enable debug mode - shows detailed logging for all components")
	host       = flag.Bool("host", false, "Broadcast this instance's playback as a radio host")
	join       = flag.String("join", "", "Tune in to the radio host at this IP, skipping discovery")
	scan       = flag.Bool("scan", false, "Discover a radio host on the local subnet and tune in to the first one found")
)

func main() {
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("[MAIN] Debug mode enabled - all components will log detailed information")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[MAIN] Failed to load config: %v", err)
	}
	if *debug {
		cfg.Debug = true
		log.Printf("[MAIN] Configuration loaded successfully")
		log.Printf("[MAIN] - Library Dir: %s", cfg.Storage.LibraryDir)
		log.Printf("[MAIN] - Cache Dir: %s", cfg.Storage.CacheDir)
		log.Printf("[MAIN] - Radio Host Port: %d", cfg.Radio.HostPort)
	}

	dataDir, err := platform.DataDir()
	if err != nil {
		log.Fatalf("[MAIN] Failed to resolve data directory: %v", err)
	}

	logCloser, err := platform.InitLogging(dataDir, cfg.Debug)
	if err != nil {
		log.Fatalf("[MAIN] Failed to init logging: %v", err)
	}
	defer logCloser.Close()

	db, err := storage.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("[MAIN] Failed to open library database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries, err := library.ScanDir(cfg.Storage.LibraryDir)
	if err != nil {
		log.Fatalf("[MAIN] Failed to scan library: %v", err)
	}
	log.Printf("[MAIN] Scanned %d tracks from %s", len(entries), cfg.Storage.LibraryDir)

	tracks := make([]types.Track, 0, len(entries))
	for _, e := range entries {
		tracks = append(tracks, e.Track)
		if err := db.UpsertTrack(ctx, e.Library); err != nil {
			log.Printf("[MAIN] upsert track %q: %v", e.Library.Path, err)
		}
	}

	engine, err := audio.NewEngine(cfg)
	if err != nil {
		log.Fatalf("[MAIN] Failed to init audio engine: %v", err)
	}

	srch := search.NewEngine(tracks)
	shuf := shuffler.New(tracks, cfg.Shuffler.HistorySize, cfg.Shuffler.ArtistSpacing)

	lyricsCachePath := filepath.Join(dataDir, ".lyricCache.json")
	lyr, err := lyrics.NewPipeline(cfg, lyricsCachePath)
	if err != nil {
		log.Fatalf("[MAIN] Failed to init lyric pipeline: %v", err)
	}

	statePath := filepath.Join(dataDir, ".musicapp_state.json")
	orch := orchestrator.New(engine, shuf, lyr, srch, db, statePath)
	orch.OnError(func(err error) {
		log.Printf("[MAIN] orchestrator error: %v", err)
	})

	recommendPath := filepath.Join(dataDir, ".player_recommend_data.json")
	rec := recommend.New(recommendPath, time.Duration(cfg.Recommend.SaveIntervalSeconds)*time.Second)
	defer rec.Close()

	orch.OnTrackStarted(func(t types.Track) {
		rec.LogSongPlay(t.Artist, t.Title)
	})
	orch.OnSearchLogged(func(query string) {
		rec.LogSearch(query)
	})

	playlistsPath := filepath.Join(dataDir, "Playlists.txt")
	if urls := playlist.LoadBootstrapURLs(playlistsPath); len(urls) > 0 {
		dl := download.NewManager(cfg)
		log.Printf("[MAIN] Bootstrapping %d playlist URLs into %s", len(urls), cfg.Storage.LibraryDir)
		dl.DownloadBootstrapURLs(ctx, urls, cfg.Storage.LibraryDir)
	}

	if *host {
		logPath := filepath.Join(dataDir, ".logging.txt")
		h := radiohost.New(orch, orch, orch, cfg.Radio.HostPort, logPath)
		if err := h.Start(); err != nil {
			log.Fatalf("[MAIN] Failed to start radio host: %v", err)
		}
		log.Printf("[MAIN] Radio host listening on port %d", cfg.Radio.HostPort)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := h.Close(shutdownCtx); err != nil {
				log.Printf("[MAIN] radio host shutdown: %v", err)
			}
		}()
	}

	var rc *radioclient.Client
	if *join != "" || *scan {
		rc = radioclient.New(engine, cfg, cfg.Storage.CacheDir)
		rc.OnError(func(err error) {
			log.Printf("[MAIN] radio client error: %v", err)
		})

		peerIP := *join
		if peerIP == "" {
			sc := scanner.New(cfg.Radio.ScanConcurrency, time.Duration(cfg.Radio.ScanTimeoutMS)*time.Millisecond, cfg.Radio.HostPort)
			found := make(chan scanner.Peer, 1)
			scanCtx, scanCancel := context.WithTimeout(ctx, 10*time.Second)
			if err := sc.ScanFirst(scanCtx, func(p scanner.Peer) {
				select {
				case found <- p:
				default:
				}
			}); err != nil {
				log.Printf("[MAIN] scan for radio host failed: %v", err)
			}
			scanCancel()
			select {
			case p := <-found:
				peerIP = p.IP
			default:
				log.Printf("[MAIN] no radio host found on the local subnet")
			}
		}

		if peerIP != "" {
			log.Printf("[MAIN] Tuning in to radio host at %s", peerIP)
			rc.Listen(peerIP)
			defer rc.Stop()
		}
	} else {
		orch.Resume()
		if _, ok := orch.CurrentSongPath(); !ok {
			orch.SkipNext()
		}
	}

	setupGracefulShutdown(cancel, orch, rc)

	<-ctx.Done()
	log.Printf("[MAIN] Shutting down")
}

func setupGracefulShutdown(cancel context.CancelFunc, orch *orchestrator.Orchestrator, rc *radioclient.Client) {
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		sig := <-c
		log.Printf("[MAIN] Received signal: %v", sig)
		log.Printf("[MAIN] Initiating graceful shutdown...")

		if rc != nil {
			rc.Stop()
		}
		if err := orch.Close(); err != nil {
			log.Printf("[MAIN] orchestrator close: %v", err)
		}
		cancel()

		log.Printf("[MAIN] Graceful shutdown completed")
		os.Exit(0)
	}()
}
