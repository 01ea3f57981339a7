/******************************************************************************
 *
 *  Description :
 *
 *    Setup & initialization.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/tinode/jsonco"

	"github.com/mercury-im/mercury/server/broker"
	"github.com/mercury-im/mercury/server/db/badgerdb"
	"github.com/mercury-im/mercury/server/db/mysql"
	"github.com/mercury-im/mercury/server/domain"
	"github.com/mercury-im/mercury/server/logs"
	"github.com/mercury-im/mercury/server/store"
)

const currentVersion = "0.1.0"

type storeConfig struct {
	// UseAdapter selects the database backend.
	UseAdapter string `json:"use_adapter" validate:"required,oneof=badgerdb mysql" envconfig:"STORE_ADAPTER"`
	// WorkerID individualizes ordinal generation per process.
	WorkerID int `json:"worker_id" validate:"gte=0,lte=1023" envconfig:"STORE_WORKER_ID"`
	// Adapters holds per-adapter configuration blobs.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

type configType struct {
	// Listen is the HTTP(S) address to listen on.
	Listen string `json:"listen" validate:"required" envconfig:"LISTEN"`
	// WSPath is the mount point of the websocket endpoint.
	WSPath string `json:"ws_path" envconfig:"WS_PATH"`
	// ExpvarPath exposes runtime variables, "-" to disable.
	ExpvarPath string `json:"expvar" envconfig:"EXPVAR_PATH"`
	// MetricsPath exposes Prometheus metrics, "-" to disable.
	MetricsPath string `json:"metrics" envconfig:"METRICS_PATH"`
	// PprofPath exposes profiling endpoints, empty to disable.
	PprofPath string `json:"pprof_url" envconfig:"PPROF_PATH"`
	// SendQueueLen is the per-session outbound buffer.
	SendQueueLen int `json:"session_queue_size" validate:"gte=0"`
	// SubQueueLen is the per-subscription broker buffer.
	SubQueueLen int `json:"subscription_queue_size" validate:"gte=0"`

	Store storeConfig `json:"store_config"`
}

var globals struct {
	store  *store.Store
	broker *broker.Broker
	// service is the mutation entry point. This binary only serves the
	// subscription side; mutations are invoked by the fronting API
	// collaborator through this handle.
	service      *domain.Service
	sessionStore *SessionStore

	statsUpdate  chan *varUpdate
	shuttingDown bool
}

func main() {
	logs.Info.Printf("server v%s pid %d started", currentVersion, os.Getpid())

	var configfile = flag.String("config", "mercury.conf", "Path to config file.")
	var listenOn = flag.String("listen", "", "Override address and port to listen on.")
	flag.Parse()

	config := loadConfig(*configfile)
	if *listenOn != "" {
		config.Listen = *listenOn
	}

	globals.store = openStore(&config.Store)
	logs.Info.Println("store: opened adapter", globals.store.GetAdapterName())

	globals.broker = broker.New(
		domain.NewResolver(globals.store),
		domain.NewGate(globals.store),
		config.SubQueueLen)
	globals.service = domain.NewService(globals.store, globals.broker)
	globals.sessionStore = NewSessionStore(config.SendQueueLen)

	mux := http.NewServeMux()
	statsInit(mux, config.ExpvarPath)
	statsRegisterInt("LiveSessions")
	statsRegisterInt("TotalSessions")
	statsRegisterInt("IncomingMessagesWebsockTotal")
	statsRegisterInt("OutgoingMessagesWebsockTotal")
	promInit(mux, config.MetricsPath)
	servePprof(mux, config.PprofPath)

	wsPath := config.WSPath
	if wsPath == "" {
		wsPath = "/v0/channels"
	}
	mux.HandleFunc(wsPath, serveWebSocket)

	if err := listenAndServe(config.Listen, mux, signalHandler()); err != nil {
		logs.Err.Fatal(err)
	}
}

// loadConfig reads the commented-JSON config file, applies environment
// overrides and validates the result.
func loadConfig(path string) *configType {
	file, err := os.Open(path)
	if err != nil {
		logs.Err.Fatalln("config: failed to read:", err)
	}
	defer file.Close()

	config, err := decodeConfig(file)
	if err != nil {
		logs.Err.Fatalln("config: failed to parse:", err)
	}

	if err = envconfig.Process("mercury", config); err != nil {
		logs.Err.Fatalln("config: failed to read environment:", err)
	}

	if err = validator.New().Struct(config); err != nil {
		logs.Err.Fatalln("config: invalid:", err)
	}
	return config
}

// decodeConfig parses a commented-JSON config stream, locating decode
// failures by line and character.
func decodeConfig(r io.Reader) (*configType, error) {
	config := &configType{}
	jr := jsonco.New(r)
	if err := json.NewDecoder(jr).Decode(config); err != nil {
		switch jerr := err.(type) {
		case *json.UnmarshalTypeError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return nil, fmt.Errorf("unmarshal error in %s at %d:%d (offset %d bytes): %w",
				jerr.Field, lnum, cnum, jerr.Offset, jerr)
		case *json.SyntaxError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			return nil, fmt.Errorf("syntax error at %d:%d (offset %d bytes): %w",
				lnum, cnum, jerr.Offset, jerr)
		default:
			return nil, err
		}
	}
	return config, nil
}

// openStore constructs the configured adapter and opens the store over
// it.
func openStore(sc *storeConfig) *store.Store {
	adp := badgerdb.New()
	if sc.UseAdapter == "mysql" {
		adp = mysql.New()
	}

	st, err := store.Open(sc.WorkerID, adp, sc.Adapters[sc.UseAdapter])
	if err != nil {
		logs.Err.Fatalln("store: failed to open:", err)
	}
	return st
}
