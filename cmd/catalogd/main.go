// Command catalogd: IPTV content ingestion and normalization service.
//
//	run    Serve the normalized catalog over HTTP with scheduled refreshes. For systemd.
//	index  Fetch the active profile's catalog once, persist the snapshot, print counts
//	guide  Fetch and parse the EPG once, print channel/program counts
//	auth   Verify the active profile's credentials against its panel
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/catalogd/catalogd/internal/cache"
	"github.com/catalogd/catalogd/internal/config"
	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/health"
	"github.com/catalogd/catalogd/internal/kvstore"
	"github.com/catalogd/catalogd/internal/refresh"
	"github.com/catalogd/catalogd/internal/repo"
	"github.com/catalogd/catalogd/internal/safeurl"
	"github.com/catalogd/catalogd/internal/server"
	"github.com/catalogd/catalogd/internal/xtream"
)

func main() {
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runAddr := runCmd.String("addr", "", "listen address (overrides CATALOGD_LISTEN_ADDR)")

	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)
	indexJSON := indexCmd.Bool("json", false, "print the channel list as JSON instead of counts")

	guideCmd := flag.NewFlagSet("guide", flag.ExitOnError)
	guideChannel := guideCmd.String("channel", "", "print now/next for one tvg-id")

	authCmd := flag.NewFlagSet("auth", flag.ExitOnError)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|index|guide|auth> [flags]\n", os.Args[0])
		os.Exit(2)
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		log.Printf("main: .env: %v", err)
	}
	cfg := config.Load()

	r, closeStore, err := buildRepository(cfg)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		addr := cfg.ListenAddr
		if *runAddr != "" {
			addr = *runAddr
		}
		if cfg.RefreshCron != "" {
			sched := refresh.New(r, cfg.RefreshCron)
			if err := sched.Start(ctx, cfg.RefreshOnBoot); err != nil {
				log.Fatalf("main: scheduler: %v", err)
			}
			defer sched.Stop()
		}
		if err := server.New(addr, r).Run(ctx); err != nil {
			log.Fatalf("main: server: %v", err)
		}

	case "index":
		_ = indexCmd.Parse(os.Args[2:])
		res, err := r.Channels(ctx)
		if err != nil {
			log.Fatalf("main: index: %v", err)
		}
		if *indexJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Data); err != nil {
				log.Fatalf("main: encode: %v", err)
			}
			return
		}
		cats, _ := r.Categories(ctx)
		vod, _ := r.VodItems(ctx)
		series, _ := r.SeriesList(ctx)
		fmt.Printf("channels=%d categories=%d vod=%d series=%d stale=%v\n",
			len(res.Data), len(cats.Data), len(vod.Data), len(series.Data), res.Stale)

	case "guide":
		_ = guideCmd.Parse(os.Args[2:])
		if *guideChannel != "" {
			nn, err := r.NowNext(ctx, *guideChannel)
			if err != nil {
				log.Fatalf("main: guide: %v", err)
			}
			printNowNext(*guideChannel, nn)
			return
		}
		res, err := r.Guide(ctx)
		if err != nil {
			log.Fatalf("main: guide: %v", err)
		}
		programs := 0
		for _, p := range res.Data.Programs {
			programs += len(p)
		}
		fmt.Printf("epg channels=%d programs=%d stale=%v\n", len(res.Data.Channels), programs, res.Stale)

	case "auth":
		_ = authCmd.Parse(os.Args[2:])
		p, err := r.ActiveProfile()
		if err != nil {
			log.Fatalf("main: auth: %v", err)
		}
		if p.Type == domain.SourceM3UFile {
			if _, err := os.Stat(strings.TrimPrefix(p.URL, "file://")); err != nil {
				log.Fatalf("main: auth: %v", err)
			}
			fmt.Printf("status=readable path=%s\n", p.URL)
			return
		}
		if p.Type != domain.SourceXtream {
			// M3U URL sources carry no credentials; a reachability check
			// is the closest equivalent.
			if err := health.CheckURL(ctx, p.URL); err != nil {
				log.Fatalf("main: auth: %s unreachable: %v", safeurl.Redact(p.URL), err)
			}
			fmt.Printf("status=reachable url=%s\n", safeurl.Redact(p.URL))
			return
		}
		info, err := r.Authenticate(ctx)
		if err != nil {
			log.Fatalf("main: auth: %v", err)
		}
		fmt.Printf("status=%s expires=%s max_connections=%d\n", info.Status, info.ExpDate.Format("2006-01-02"), info.MaxConnections)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

// buildRepository assembles store, cache, and repository from config and
// seeds profiles from the YAML file when one is configured.
func buildRepository(cfg *config.Config) (*repo.Repository, func(), error) {
	var (
		kv      kvstore.Store
		cleanup = func() {}
	)
	switch cfg.StoreBackend {
	case "memory":
		kv = kvstore.NewMemory()
	case "redis":
		rs, err := kvstore.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		kv, cleanup = rs, func() { _ = rs.Close() }
	default:
		ss, err := kvstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		kv, cleanup = ss, func() { _ = ss.Close() }
	}

	r := repo.New(cache.NewStore(kv, cfg.TTLs()), repo.WithXtreamFactory(func(creds domain.XtreamCredentials) repo.XtreamAPI {
		return xtream.NewClient(creds, xtream.WithLiveExtension(cfg.LiveExtension))
	}))

	profiles, err := config.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	for _, p := range profiles {
		added := r.AddProfile(p)
		if p.Active {
			if err := r.SetActiveProfile(added.ID); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
	}
	return r, cleanup, nil
}

func printNowNext(tvgID string, nn *domain.EPGSummary) {
	if nn == nil || nn.Current == nil {
		fmt.Printf("%s: no current program\n", tvgID)
		return
	}
	fmt.Printf("%s: now %q (%.0f%%)", tvgID, nn.Current.Title, nn.Current.Progress(time.Now().UTC())*100)
	if nn.Next != nil {
		fmt.Printf(", next %q at %s", nn.Next.Title, nn.Next.Start.Local().Format("15:04"))
	}
	fmt.Println()
}
