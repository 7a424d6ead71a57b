package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdew/MCMultiPart/internal/config"
	"github.com/bdew/MCMultiPart/internal/logging"
	"github.com/bdew/MCMultiPart/internal/metrics"
	"github.com/bdew/MCMultiPart/internal/persistence/indexdb"
	"github.com/bdew/MCMultiPart/internal/persistence/objstore"
	persistlog "github.com/bdew/MCMultiPart/internal/persistence/log"
	"github.com/bdew/MCMultiPart/internal/sim/parts"
	"github.com/bdew/MCMultiPart/internal/sim/parts/kinds"
	"github.com/bdew/MCMultiPart/internal/sim/world"
	"github.com/bdew/MCMultiPart/internal/transport/admin"
	"github.com/bdew/MCMultiPart/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/server.yaml", "server config (missing file means defaults)")
		worldID    = flag.String("world", "", "world id (overrides config)")
		logLevel   = flag.String("log_level", "", "log level (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite change index")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Fatal("load config")
		}
		cfg = config.Defaults()
	}
	if *worldID != "" {
		cfg.WorldID = *worldID
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *disableDB {
		cfg.Index.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("config")
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	l := logger.WithFields(log.Fields{"cmd": "server", "world": cfg.WorldID})

	reg := parts.NewRegistry()
	if err := kinds.RegisterDefaults(reg, cfg.PartTypes); err != nil {
		l.WithError(err).Fatal("register part types")
	}

	w, err := world.New(world.WorldConfig{
		ID:                 cfg.WorldID,
		TickRateHz:         cfg.TickRateHz,
		DefaultChunkRadius: cfg.Observer.DefaultChunkRadius,
		MaxChunkRadius:     cfg.Observer.MaxChunkRadius,
		MaxObservers:       cfg.Observer.MaxObservers,
		MaxPayload:         cfg.MaxPayload,
	}, reg, logger)
	if err != nil {
		l.WithError(err).Fatal("create world")
	}

	var mirror *objstore.Mirror
	if cfg.Mirror.Enabled {
		client, err := objstore.NewClient(objstore.ClientConfig{
			Endpoint:        cfg.Mirror.Endpoint,
			Bucket:          cfg.Mirror.Bucket,
			Region:          cfg.Mirror.Region,
			AccessKeyID:     os.Getenv("MP_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("MP_S3_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			l.WithError(err).Fatal("journal mirror")
		}
		mirror = objstore.NewMirror(client, objstore.MirrorConfig{
			BaseDir: cfg.Journal.Dir,
			Prefix:  cfg.Mirror.Prefix,
			Workers: cfg.Mirror.Workers,
		}, logger)
		// Runs after the journal's deferred Close so the last file is queued.
		defer func() {
			mirror.Close()
			st := mirror.Stats()
			l.WithFields(log.Fields{"uploaded": st.UploadedTotal, "failed": st.FailedTotal, "dropped": st.DroppedTotal}).Info("mirror closed")
		}()
	}

	var sinks multiChangeLogger
	if cfg.Journal.Enabled {
		jl := persistlog.NewChangeLogger(cfg.Journal.Dir)
		if mirror != nil {
			jl.OnFileClosed(mirror.Enqueue)
		}
		defer jl.Close()
		sinks = append(sinks, jl)
	}
	var idx *indexdb.SQLiteIndex
	if cfg.Index.Enabled {
		idx, err = indexdb.OpenSQLite(cfg.Index.Path, cfg.WorldID)
		if err != nil {
			l.WithError(err).Fatal("open index")
		}
		defer idx.Close()
		if err := idx.UpsertPartTypes(reg.Types()); err != nil {
			l.WithError(err).Warn("index part types")
		}
		sinks = append(sinks, idx)
	}
	if len(sinks) > 0 {
		w.SetChangeLogger(sinks)
	}
	l = l.WithField("session", w.Session())

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(promReg); err != nil {
		l.WithError(err).Fatal("register metrics")
	}

	runCtx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(runCtx); err != nil && err != context.Canceled {
			l.WithError(err).Error("world loop")
		}
		cancel()
	}()

	obsSrv, err := observer.NewServer(w, observer.Options{
		QueueSize:    cfg.Observer.QueueSize,
		WriteTimeout: time.Duration(cfg.Observer.WriteTimeoutMs) * time.Millisecond,
		ReadTimeout:  time.Duration(cfg.Observer.ReadTimeoutMs) * time.Millisecond,
	}, logger)
	if err != nil {
		l.WithError(err).Fatal("observer server")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	enableAdminHTTP := envBool("MP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("MP_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		adm, err := admin.NewServer(w, logger)
		if err != nil {
			l.WithError(err).Fatal("admin server")
		}
		adm.Register(mux)
	} else {
		l.Info("admin endpoints disabled (MP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return runCtx },
	}

	go func() {
		<-runCtx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	l.WithFields(log.Fields{"addr": *addr, "part_types": strings.Join(reg.Types(), ",")}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.WithError(err).Fatal("ListenAndServe")
	}
	<-worldDone
	if idx != nil {
		st := idx.Stats()
		l.WithFields(log.Fields{"written": st.WrittenTotal, "dropped": st.DroppedTotal, "failed": st.WriteFailures}).Info("index closed")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// multiChangeLogger fans one change out to every sink; a failing sink does
// not stop the others.
type multiChangeLogger []world.ChangeLogger

func (m multiChangeLogger) WriteChange(entry world.ChangeLogEntry) error {
	var first error
	for _, l := range m {
		if err := l.WriteChange(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
