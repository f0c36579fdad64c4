package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"nyiyui.ca/hato/shingo/config"
	"nyiyui.ca/hato/shingo/kujo"
	"nyiyui.ca/hato/shingo/preset"
	"nyiyui.ca/hato/shingo/runtime"
	"nyiyui.ca/hato/shingo/sakuragi"
	"nyiyui.ca/hato/shingo/sim"
	"nyiyui.ca/hato/shingo/store"
	"nyiyui.ca/hato/shingo/track"
)

func main() {
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	logFile := flag.String("log-file", "", "also write JSON logs to this file, rotated")
	configPath := flag.String("config", "", "configuration file (default: built-in configuration)")
	layout := flag.String("layout", "", "preset layout, overriding the configuration")
	load := flag.String("load", "", "restore this save before starting")
	saveAs := flag.String("save-as", "", "save under this name on exit")
	list := flag.Bool("list", false, "list saves and exit")
	demo := flag.Bool("demo", false, "route a train from the first section to the last")
	ticks := flag.Int("ticks", 0, "stop after this many ticks (0: run until interrupted)")
	flag.Parse()

	setupLogging(*level, *logFile)
	defer zap.S().Sync()

	if err := run(*configPath, *layout, *load, *saveAs, *list, *demo, *ticks); err != nil {
		zap.S().Fatalf("%s", err)
	}
}

func setupLogging(level zapcore.Level, logFile string) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	if logFile != "" {
		w := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    32, // MB
			MaxBackups: 3,
			Compress:   true,
		}
		file := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), cfg.Level)
		dev = zap.New(zapcore.NewTee(dev.Core(), file), zap.AddCaller())
	}
	zap.ReplaceGlobals(dev)
}

func run(configPath, layout, load, saveAs string, list, demo bool, ticks int) error {
	conf := config.Default()
	if configPath != "" {
		var err error
		conf, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	if layout != "" {
		conf.Engine.Layout = layout
	}

	db, err := store.Open(conf.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if list {
		infos, err := db.List()
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("%s\t%s\ttick %d\t%s\n", info.ID, info.Saved.Format(time.RFC3339), info.Tick, info.Name)
		}
		return nil
	}

	types, err := conf.Types()
	if err != nil {
		return fmt.Errorf("signal types: %w", err)
	}
	build, ok := preset.Layouts[conf.Engine.Layout]
	if !ok {
		names := make([]string, 0, len(preset.Layouts))
		for name := range preset.Layouts {
			names = append(names, name)
		}
		slices.Sort(names)
		return fmt.Errorf("unknown layout %q (have %v)", conf.Engine.Layout, names)
	}
	c, err := build(types, preset.Options{Signal: conf.SignalOptions(), Sim: conf.SimOptions()})
	if err != nil {
		return fmt.Errorf("layout %s: %w", conf.Engine.Layout, err)
	}
	zap.S().Infow("layout built",
		"layout", conf.Engine.Layout,
		"sections", len(c.Track.Sections),
		"nodes", len(c.Signals.Nodes),
		"functions", types.Functions().Len(),
	)

	if load != "" {
		id, err := uuid.Parse(load)
		if err != nil {
			return fmt.Errorf("save id: %w", err)
		}
		if err := db.Load(id, c); err != nil {
			return err
		}
		zap.S().Infow("restored", "id", id, "tick", c.Ticks())
	}
	if demo {
		if err := demoTrain(c); err != nil {
			return fmt.Errorf("demo: %w", err)
		}
	}

	var trace *os.File
	if conf.Engine.TracePath != "" {
		trace, err = os.Create(conf.Engine.TracePath)
		if err != nil {
			return err
		}
		defer trace.Close()
	}
	rc := runtime.Conf{Interval: conf.Engine.TickInterval.Duration}
	if trace != nil {
		rc.Trace = trace
	}
	i := runtime.NewInstance(c, rc)

	relay, err := kujo.NewServer(kujo.Conf{
		HistorySize:    conf.Server.HistorySize,
		AllowedOrigins: conf.Server.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	zap.S().Infow("relay session", "session", relay.Session)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if ticks <= 0 {
			return i.Run(ctx)
		}
		for n := 0; n < ticks; n++ {
			if err := i.Step(); err != nil {
				return err
			}
		}
		stop()
		return nil
	})
	eg.Go(func() error {
		return relay.Run(ctx, i.Snapshots)
	})
	for _, srv := range []*http.Server{
		{Addr: conf.Server.RelayAddr, Handler: relay},
		{Addr: conf.Server.StatusAddr, Handler: sakuragi.New(i.Latest)},
	} {
		if srv.Addr == "" {
			continue
		}
		eg.Go(func() error {
			zap.S().Infow("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if saveAs != "" {
		return i.Do(func(c *sim.Context) error {
			_, err := db.Save(context.Background(), saveAs, c)
			return err
		})
	}
	return nil
}

// demoTrain routes train 0 from the start of the first section to the last section.
func demoTrain(c *sim.Context) error {
	last := len(c.Track.Sections) - 1
	route, err := c.Track.PathTo(0, track.Forward, last)
	if err != nil {
		return err
	}
	if _, err := c.AddTrain(0, track.Position{Section: 0, Offset: 10}, track.Forward); err != nil {
		return err
	}
	if err := c.SetRoute(0, route); err != nil {
		return err
	}
	n, err := c.Reserve(0)
	if err != nil {
		return err
	}
	zap.S().Infow("demo train routed", "route", route.String(), "reserved", n)
	return nil
}
