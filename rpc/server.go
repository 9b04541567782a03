// Package rpc wires the internal/ethapi services onto spec §4.E's
// transport: a single JSON-RPC 2.0 HTTP endpoint, CORS-open, method
// dispatch and envelope handled entirely by go-ethereum/rpc rather than
// a hand-rolled decoder.
package rpc

import (
	"context"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/internal/ethapi"
)

// Server is the listening JSON-RPC endpoint described in spec §6: every
// namespace registered on the same gethrpc.Server at "/", plus the
// chain's Prometheus registry at "/metrics".
type Server struct {
	http *http.Server
	rpc  *gethrpc.Server
}

// New builds a Server with the eth/net/web3/debug namespaces registered
// against chain. It does not start listening; call ListenAndServe.
func New(addr string, c *chain.Chain, chainID uint64) *Server {
	srv := gethrpc.NewServer(0 * time.Second)

	must(srv.RegisterName("web3", &ethapi.Web3Service{}))
	must(srv.RegisterName("net", ethapi.NewNetService(chainID)))
	must(srv.RegisterName("eth", ethapi.NewIdentityService(c)))
	must(srv.RegisterName("eth", ethapi.NewStateService(c)))
	must(srv.RegisterName("eth", ethapi.NewTxService(c)))
	must(srv.RegisterName("eth", ethapi.NewFilterService(c)))
	must(srv.RegisterName("debug", ethapi.NewDebugService(c)))

	rpcHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(srv)

	mux := http.NewServeMux()
	mux.Handle("/", rpcHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))

	return &Server{
		http: &http.Server{Addr: addr, Handler: mux},
		rpc:  srv,
	}
}

// ListenAndServe blocks serving JSON-RPC until ctx is canceled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.rpc.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func must(err error) {
	if err != nil {
		panic("rpc: namespace registration: " + err.Error())
	}
}
