package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"crypto/tls"
	"path/filepath"

	"github.com/egisj/Dotted-Version-Vectors/comm"
	"github.com/egisj/Dotted-Version-Vectors/config"
	"github.com/egisj/Dotted-Version-Vectors/crdt"
	"github.com/egisj/Dotted-Version-Vectors/crypto"
	"github.com/egisj/Dotted-Version-Vectors/frontend"
	"github.com/egisj/Dotted-Version-Vectors/store"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Functions

// initLogger initializes a JSON gokit-logger set
// to the according log level supplied via cli flag.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

// applyRemoteUpdates drains the clock ops comm's receiver hands
// up, already parsed and in causal order, and merges each op's
// Clock into the local store under its key. It acknowledges
// every op on doneChan so the receiver can proceed to the
// next one.
func applyRemoteUpdates(logger log.Logger, svc store.Service, applyChan chan *crdt.ClockOp, doneChan chan struct{}) {

	for op := range applyChan {

		if err := svc.SyncRemote(op.Key, op.Clock); err != nil {
			level.Error(logger).Log("msg", "failed to apply remote sync payload", "key", op.Key, "err", err)
		}

		doneChan <- struct{}{}
	}
}

// forwardBroadcasts drains the local store's broadcast channel
// and hands each key's Clock to the sync sender as a Message,
// where it is persisted to the replica's sync log and fanned
// out to every configured peer.
func forwardBroadcasts(toSend chan *store.Broadcast, senderInc chan comm.Message) {

	for b := range toSend {

		op := &crdt.ClockOp{Key: b.Key, Clock: b.Clock}

		msg := comm.InitMessage()
		msg.Payload = op.String()

		senderInc <- *msg
	}
}

func main() {

	var err error

	// Set CPUs usable by this process to all available.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Parse command-line flags.
	configFlag := flag.String("config", "config.toml", "Provide path to configuration file in TOML syntax.")
	replicaFlag := flag.String("replica", "", "Name of the replica defined in the config file this process should run as.")
	loglevelFlag := flag.String("loglevel", "debug", "This flag sets the default logging level.")
	flag.Parse()

	logger := initLogger(*loglevelFlag)

	if *replicaFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Read configuration from file.
	conf, err := config.LoadConfig(*configFlag)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load the config", "err", err)
		os.Exit(2)
	}

	replicaConf, ok := conf.Replicas[*replicaFlag]
	if !ok {
		level.Error(logger).Log("msg", "no such replica defined in config", "replica", *replicaFlag)
		os.Exit(3)
	}

	logger = log.With(logger, "replica", replicaConf.Name)

	// Build the internal TLS config used both for the sync
	// listener and for dialing out to peers, and a separate,
	// relaxed TLS config for the client-facing frontend.
	syncTLSConfig, frontendTLSConfig, err := crypto.NewReplicaTLSConfigs(replicaConf, conf.RootCertLoc)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build TLS configs", "err", err)
		os.Exit(4)
	}

	if err := os.MkdirAll(replicaConf.DataRoot, 0700); err != nil {
		level.Error(logger).Log("msg", "failed to create data root directory", "path", replicaConf.DataRoot, "err", err)
		os.Exit(6)
	}

	metricsSet := NewStoreMetrics(replicaConf.PrometheusAddr)
	go runPromHTTP(logger, replicaConf.PrometheusAddr)

	// Wire up the store, decorated with logging and metrics.
	toSend := make(chan *store.Broadcast, 64)
	storeSvc := store.NewService(replicaConf.Name, map[string]chan *store.Broadcast{
		replicaConf.Name: toSend,
	})
	storeSvc = store.NewLoggingService(storeSvc, logger)
	storeSvc = store.NewMetricsService(storeSvc, metricsSet.Replica.Puts, metricsSet.Replica.Syncs, metricsSet.Replica.Resolves, metricsSet.Replica.SiblingsObserved)

	// Set up the sync listener and peer list for comm.
	syncListener, err := tls.Listen("tcp", replicaConf.ListenSyncAddr, syncTLSConfig)
	if err != nil {
		level.Error(logger).Log("msg", "failed to listen for sync connections", "addr", replicaConf.ListenSyncAddr, "err", err)
		os.Exit(7)
	}

	peerNames := make([]string, 0, len(replicaConf.Peers))
	for peer := range replicaConf.Peers {
		peerNames = append(peerNames, peer)
	}

	applyChan := make(chan *crdt.ClockOp)
	doneChan := make(chan struct{})
	downRecv := make(chan struct{})

	incVClock, updVClock, err := comm.InitReceiver(
		replicaConf.Name,
		filepath.Join(replicaConf.DataRoot, "receiving.log"),
		filepath.Join(replicaConf.DataRoot, "vclock.log"),
		syncListener,
		applyChan,
		doneChan,
		downRecv,
		peerNames,
	)
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialize sync receiver", "err", err)
		os.Exit(8)
	}

	go applyRemoteUpdates(logger, storeSvc, applyChan, doneChan)

	senderInc, err := comm.InitSender(
		logger,
		replicaConf.Name,
		filepath.Join(replicaConf.DataRoot, "sending.log"),
		syncTLSConfig,
		incVClock,
		updVClock,
		replicaConf.SyncRetryMS,
		replicaConf.SyncTimeoutMS,
		replicaConf.Peers,
	)
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialize sync sender", "err", err)
		os.Exit(9)
	}

	go forwardBroadcasts(toSend, senderInc)

	// Wire up the frontend, also decorated with logging and metrics.
	frontendSvc := frontend.NewService(logger, storeSvc)
	frontendSvc = frontend.NewLoggingService(frontendSvc, logger)
	frontendSvc = frontend.NewMetricsService(frontendSvc, metricsSet.Frontend.Gets, metricsSet.Frontend.Puts, metricsSet.Frontend.Syncs)

	frontendListener, err := tls.Listen("tcp", replicaConf.ListenFrontendAddr, frontendTLSConfig)
	if err != nil {
		level.Error(logger).Log("msg", "failed to listen for frontend connections", "addr", replicaConf.ListenFrontendAddr, "err", err)
		os.Exit(10)
	}

	level.Info(logger).Log("msg", "replica ready", "frontend", replicaConf.ListenFrontendAddr, "sync", replicaConf.ListenSyncAddr)

	greeting := fmt.Sprintf("%s ready", replicaConf.Name)
	if err := frontendSvc.Run(frontendListener, greeting); err != nil {
		level.Error(logger).Log("msg", "frontend listener failed", "err", err)
		os.Exit(11)
	}
}
