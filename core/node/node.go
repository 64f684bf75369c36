// Development chain server for the light wallet
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/spectrum-chain/litewallet/core/chain"
)

// Node serves a single-producer chain to light wallets
type Node struct {
	store    *chain.Store
	mempool  *Mempool
	producer *Producer
	metrics  *metrics
	limiter  *ipLimiter
	config   *Config
	version  string

	apiServer *http.Server
	cancel    context.CancelFunc
	done      sync.WaitGroup
	isRunning bool
}

// NewNode creates a node over store. The genesis block is written if the
// store is empty.
func NewNode(store *chain.Store, config *Config, version string) (*Node, error) {
	m := newMetrics()
	mempool := NewMempool(store, config.MempoolSize)
	n := &Node{
		store:    store,
		mempool:  mempool,
		producer: NewProducer(store, mempool, config, m),
		metrics:  m,
		limiter:  newIPLimiter(config.RateLimitRPS, config.RateBurst),
		config:   config,
		version:  version,
	}

	tip, err := n.producer.EnsureGenesis(time.Now())
	if err != nil {
		return nil, err
	}
	m.height.Set(float64(tip.Height))
	return n, nil
}

// Producer exposes the block producer, mostly for tests and tooling
func (n *Node) Producer() *Producer {
	return n.producer
}

// Mempool exposes the pending transaction pool
func (n *Node) Mempool() *Mempool {
	return n.mempool
}

// Start starts the API server and the block production loop
func (n *Node) Start(ctx context.Context) error {
	if n.isRunning {
		return fmt.Errorf("node is already running")
	}

	log.Infof("Starting %s node on %s...", n.config.ChainName, n.config.Listen)

	listener, err := net.Listen("tcp", n.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	n.apiServer = &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.done.Add(2)
	go func() {
		defer n.done.Done()
		log.Infof("API server listening on %s", listener.Addr())
		if err := n.apiServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("API server error: %v", err)
		}
	}()
	go func() {
		defer n.done.Done()
		n.producer.Run(ctx)
	}()

	n.isRunning = true
	return nil
}

// Stop shuts down the API server and waits for background tasks
func (n *Node) Stop(ctx context.Context) error {
	if !n.isRunning {
		return nil
	}

	log.Info("Stopping node...")
	n.cancel()

	var err error
	if shutdownErr := n.apiServer.Shutdown(ctx); shutdownErr != nil {
		err = fmt.Errorf("failed to stop API server gracefully: %w", shutdownErr)
	}
	n.done.Wait()

	n.isRunning = false
	log.Info("Node stopped")
	return err
}

// Handler returns the node's HTTP API
func (n *Node) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/info", n.instrument("info", n.handleInfo)).Methods(http.MethodGet)
	api.HandleFunc("/blocks", n.instrument("blocks", n.handleGetBlocks)).Methods(http.MethodGet)
	api.HandleFunc("/transactions", n.instrument("submit", n.handleSubmitTransaction)).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{txid}", n.instrument("transaction", n.handleGetTransaction)).Methods(http.MethodGet)
	api.Use(n.limiter.middleware)

	router.Handle("/metrics", n.metrics.handler()).Methods(http.MethodGet)
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (n *Node) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		n.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		log.Tracef("%s %s -> %d", r.Method, r.URL.Path, rec.code)
	}
}

// handleInfo handles the chain info API endpoint
func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	tip, err := n.store.Tip()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get last block: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, chain.ChainInfo{
		ChainName: n.config.ChainName,
		Height:    tip.Height,
		TipHash:   tip.Hash,
		Version:   n.version,
	})
}

// handleGetBlocks handles the block range API endpoint
func (n *Node) handleGetBlocks(w http.ResponseWriter, r *http.Request) {
	start, err := parseUint64(r.URL.Query().Get("start"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid start height")
		return
	}
	end, err := parseUint64(r.URL.Query().Get("end"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid end height")
		return
	}
	if end < start {
		respondWithError(w, http.StatusBadRequest, "End height is below start height")
		return
	}

	blocks, err := n.store.Blocks(start, end)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get blocks: %v", err))
		return
	}
	if blocks == nil {
		blocks = []chain.Block{}
	}

	respondWithJSON(w, http.StatusOK, blocks)
}

// handleSubmitTransaction handles the submit transaction API endpoint
func (n *Node) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx chain.Transaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&tx); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := n.mempool.Add(&tx); err != nil {
		code := http.StatusBadRequest
		reason := "invalid"
		switch {
		case errors.Is(err, ErrMempoolFull):
			code, reason = http.StatusServiceUnavailable, "mempool_full"
		case errors.Is(err, ErrDuplicateTx):
			code, reason = http.StatusConflict, "duplicate"
		case errors.Is(err, ErrDoubleSpend):
			code, reason = http.StatusConflict, "double_spend"
		}
		n.metrics.rejected.WithLabelValues(reason).Inc()
		log.Debugf("Rejected transaction %s: %v", tx.ID, err)
		respondWithError(w, code, err.Error())
		return
	}

	n.metrics.mempoolSize.Set(float64(n.mempool.Size()))
	log.Debugf("Accepted transaction %s", tx.ID)
	respondWithJSON(w, http.StatusOK, map[string]string{"txid": tx.ID})
}

// handleGetTransaction handles the get transaction API endpoint
func (n *Node) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := mux.Vars(r)["txid"]
	if txID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing transaction ID")
		return
	}

	// Check mempool first
	if tx, ok := n.mempool.Get(txID); ok {
		respondWithJSON(w, http.StatusOK, chain.TxStatus{Transaction: tx})
		return
	}

	tx, height, err := n.store.Transaction(txID)
	if errors.Is(err, chain.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get transaction: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, chain.TxStatus{Transaction: tx, Height: height, Confirmed: true})
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(fmt.Sprintf(`{"error": "Failed to marshal JSON response: %v"}`, err)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func parseUint64(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseUint(s, 10, 64)
}
