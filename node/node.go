// Package node defines the aimo node process: it assembles the revocation
// database, the message router and the API server, and handles the lifecycle
// of the entire system through a service registry.
package node

import (
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/aimo-network/aimo/cmd/aimo/flags"
	"github.com/aimo-network/aimo/db"
	"github.com/aimo-network/aimo/db/kv"
	"github.com/aimo-network/aimo/router"
	"github.com/aimo-network/aimo/runtime"
	"github.com/aimo-network/aimo/server"
)

var log = logrus.WithField("prefix", "node")

// AiMoNode hosts the services running an inference routing node. It handles
// the lifecycle of the entire system and registers services to a service
// registry.
type AiMoNode struct {
	cliCtx   *cli.Context
	lock     sync.RWMutex
	services *runtime.ServiceRegistry
	stop     chan struct{}
	db       db.Database
}

// New creates a node instance from the cli context and registers every
// required service.
func New(cliCtx *cli.Context) (*AiMoNode, error) {
	registry := runtime.NewServiceRegistry()

	n := &AiMoNode{
		cliCtx:   cliCtx,
		services: registry,
		stop:     make(chan struct{}),
	}

	if err := n.startDB(cliCtx); err != nil {
		return nil, err
	}
	broker, err := n.registerRouter()
	if err != nil {
		return nil, err
	}
	if err := n.registerAPIServer(cliCtx, broker); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *AiMoNode) startDB(cliCtx *cli.Context) error {
	dataDir := cliCtx.String(flags.DataDirFlag.Name)
	if dataDir == "" {
		dataDir = db.DefaultDataDir()
	}
	store, err := kv.NewKVStore(dataDir)
	if err != nil {
		return err
	}
	log.WithField("path", store.DatabasePath()).Info("Checking database")
	n.db = store
	return nil
}

func (n *AiMoNode) registerRouter() (router.Router, error) {
	broker := router.NewLocalRouter()
	return broker, n.services.RegisterService(broker)
}

func (n *AiMoNode) registerAPIServer(cliCtx *cli.Context, broker router.Router) error {
	srv := server.New(&server.Config{
		Host:           cliCtx.String(flags.HTTPHostFlag.Name),
		Port:           cliCtx.Int(flags.HTTPPortFlag.Name),
		AllowedOrigins: strings.Split(cliCtx.String(flags.CorsDomainFlag.Name), ","),
	}, broker, n.db)
	return n.services.RegisterService(srv)
}

// Start every registered service and block until an interrupt arrives or
// Close is called.
func (n *AiMoNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the aimo node")
	}()

	<-stop
}

// Close handles graceful shutdown of the system.
func (n *AiMoNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping aimo node")
	n.services.StopAll()
	if err := n.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	close(n.stop)
}
