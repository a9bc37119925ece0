package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	flag "github.com/spf13/pflag"
	"github.com/zkballot/zkballot-node/api"
	"github.com/zkballot/zkballot-node/ballot"
	"github.com/zkballot/zkballot-node/db"
	"github.com/zkballot/zkballot-node/prover"
	"github.com/zkballot/zkballot-node/registry"
	"github.com/zkballot/zkballot-node/relay"
	"github.com/zkballot/zkballot-node/treebuilder"
	"github.com/zkballot/zkballot-node/zkverifier"
	kvdb "go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
	"go.vocdoni.io/dvote/log"
)

// Config contains the main configuration parameters of the node
type Config struct {
	dir, logLevel, port   string
	treeBuilder, node     bool
	adminAddr, systemAddr string
	relayID, ballotAddr   string
	proverURL             string
}

func addrFlag(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, value)
	}
	return common.HexToAddress(value), nil
}

func main() {
	config := Config{}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	flag.StringVarP(&config.dir, "dir", "d", filepath.Join(home, ".zkballot-node"),
		"storage data directory")
	flag.StringVarP(&config.logLevel, "logLevel", "l", "info", "log level (info, debug, warn, error)")
	flag.StringVarP(&config.port, "port", "p", "8080", "network port for the HTTP API")
	flag.BoolVarP(&config.treeBuilder, "treebuilder", "t", false, "eligibility TreeBuilder active")
	flag.BoolVarP(&config.node, "node", "n", false, "voting node active (registry, relay, ballot)")
	flag.StringVar(&config.adminAddr, "admin", "", "ballot admin account address")
	flag.StringVar(&config.systemAddr, "system", "", "registry system account address")
	flag.StringVar(&config.relayID, "relayid", "", "relay identifier address, signed into relayed calls")
	flag.StringVar(&config.ballotAddr, "ballot", "", "ballot engine target address at the relay")
	flag.StringVar(&config.proverURL, "prover", "", "URL of the proving service, enables the proof proxy endpoints")

	flag.CommandLine.SortFlags = false
	flag.Parse()

	log.Init(config.logLevel, "stdout")

	log.Debugf("Config: %#v\n", config)

	var treeBuilder *treebuilder.TreeBuilder
	var rg *registry.Registry
	var rl *relay.Relay
	var be *ballot.Engine
	if config.treeBuilder {
		opts := kvdb.Options{Path: filepath.Join(config.dir, "treebuilder")}
		database, err := pebbledb.New(opts)
		if err != nil {
			log.Fatal(err)
		}

		treeBuilder, err = treebuilder.New(database, filepath.Join(config.dir, "subsdb"))
		if err != nil {
			log.Fatal(err)
		}
	}
	if config.node {
		sqlDB, err := sql.Open("sqlite3", filepath.Join(config.dir, "zkballot.sqlite3"))
		if err != nil {
			log.Fatal(err)
		}
		sqlite := db.NewSQLite(sqlDB)
		if err = sqlite.Migrate(); err != nil {
			log.Fatal(err)
		}

		adminAddr, err := addrFlag("admin", config.adminAddr)
		if err != nil {
			log.Fatal(err)
		}
		systemAddr, err := addrFlag("system", config.systemAddr)
		if err != nil {
			log.Fatal(err)
		}
		relayID, err := addrFlag("relayid", config.relayID)
		if err != nil {
			log.Fatal(err)
		}
		ballotAddr, err := addrFlag("ballot", config.ballotAddr)
		if err != nil {
			log.Fatal(err)
		}

		dispatcher := relay.NewDispatcher()
		rg, err = registry.New(registry.Options{
			DB:            sqlite,
			SystemAccount: systemAddr,
			Forwarder:     dispatcher,
		})
		if err != nil {
			log.Fatal(err)
		}
		rl, err = relay.New(relay.Options{
			DB:            sqlite,
			AccessChecker: rg,
			Dispatcher:    dispatcher,
			Address:       relayID,
		})
		if err != nil {
			log.Fatal(err)
		}
		be, err = ballot.New(ballot.Options{
			DB:       sqlite,
			Registry: rg,
			Verifier: zkverifier.NewPlaceholder(),
			Admin:    adminAddr,
		})
		if err != nil {
			log.Fatal(err)
		}
		// the ballot engine is reachable through the relay at the
		// ballot target address
		dispatcher.RegisterTarget(ballotAddr, be)
	}

	var proverClient *prover.Client
	if config.proverURL != "" {
		proverClient = prover.NewClient(config.proverURL)
	}

	a, err := api.New(treeBuilder, rg, rl, be, proverClient)
	if err != nil {
		log.Fatal(err)
	}
	err = a.Serve(config.port)
	if err != nil {
		log.Fatal(err)
	}
}
