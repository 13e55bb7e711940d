package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mastercactapus/grblhc/config"
	"github.com/mastercactapus/grblhc/device"
	"github.com/mastercactapus/grblhc/grbl"
	"github.com/mastercactapus/grblhc/spjs"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgFile := flag.String("config", "", "Path to a YAML config file.")
	port := flag.String("port", "/dev/ttyUSB0", "Port path (or name if using SPJS).")
	baud := flag.Int("baud", device.DefaultBaud, "Baud rate of the port.")
	spjsURL := flag.String("spjs", "", "Websocket URL of the SPJS server to use, if any.")
	addr := flag.String("addr", ":9091", "Address to bind the HTTP server to.")
	dir := flag.String("dir", "./data", "Data directory to use.")
	level := flag.String("log-level", "info", "Log level.")
	flag.Parse()

	cfg := config.Default()
	if *cfgFile != "" {
		loaded, err := config.Load(*cfgFile)
		if err != nil {
			logrus.WithError(err).Fatal("load config")
		}
		cfg = *loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Device.Port = *port
		case "baud":
			cfg.Device.Baud = *baud
		case "spjs":
			cfg.Device.SPJS = *spjsURL
		case "addr":
			cfg.HTTP.Addr = *addr
		case "dir":
			cfg.HTTP.DataDir = *dir
		case "log-level":
			cfg.Log.Level = *level
		}
	})
	err := cfg.Validate()
	if err != nil {
		logrus.WithError(err).Fatal("invalid config")
	}

	logger := logrus.New()
	err = applyLog(logger, cfg.Log)
	if err != nil {
		logger.WithError(err).Fatal("parse log level")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	open := device.SerialOpener(cfg.Device.Baud)
	if cfg.Device.SPJS != "" {
		sp := spjs.NewClient(cfg.Device.SPJS, logger)
		defer sp.Close()
		open = spjs.Opener(sp, cfg.Device.Baud)
	}

	ccfg := cfg.ControllerConfig(open)
	ccfg.Logger = logger
	ccfg.Exit = cancel
	c := grbl.NewController(ccfg)

	a := newAPI(c, cfg.Device.Port, cfg.HTTP.DataDir, logger)
	logger.AddHook(a.consoleHook())

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			logger.Debugf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
			a.ServeHTTP(w, req)
		}),
	}

	err = c.Connect(cfg.Device.Port)
	if err != nil {
		logger.WithError(err).Error("connect")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })
	g.Go(func() error {
		logger.Infof("listening on %s", cfg.HTTP.Addr)
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	if *cfgFile != "" {
		g.Go(func() error {
			return config.Watch(ctx, *cfgFile, logger, func(n *config.Config) {
				err := applyLog(logger, n.Log)
				if err != nil {
					logger.WithError(err).Warn("reload log settings")
					return
				}
				logger.Infof("log level is now %s", n.Log.Level)
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		err := c.Disconnect()
		if err != nil {
			logger.WithError(err).Error("disconnect")
		}
		if !waitDisconnected(c, cfg.Scheduler.DisconnectDelay+5*time.Second) {
			logger.Warn("device did not close before shutdown")
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("server")
	}
}

// waitDisconnected polls until c has closed its device or timeout passes.
func waitDisconnected(c Controller, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for c.State() != grbl.Disconnected {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// applyLog sets level and format. Only the log settings are applied on
// reload; the rest needs a restart.
func applyLog(logger *logrus.Logger, l config.Log) error {
	lvl, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	if l.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	return nil
}
