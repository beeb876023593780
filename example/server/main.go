// This is an example of a federation server terminating TLS with a context
// built by fedtls.BuildContext. The server name sent by each client is logged
// before the handshake, and metrics are served on a separate endpoint.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c2FmZQ/fedtls"
)

var (
	addr           = flag.String("addr", "127.0.0.1:8448", "The TCP address to use.")
	configFile     = flag.String("config", "fedtls.yaml", "The YAML configuration file.")
	curve          = flag.String("curve", fedtls.DefaultCurveName, "The ECDH curve to use.")
	debug          = flag.Bool("debug", false, "Toggle debug mode")
	prometheusEpnt = flag.String("prometheus", "127.0.0.1:9091", "Prometheus endpoint")
)

func main() {
	flag.Parse()
	log.SetHandler(cli.Default)
	logmap := map[bool]log.Level{
		true:  log.DebugLevel,
		false: log.InfoLevel,
	}
	log.SetLevel(logmap[*debug])

	cfg, err := fedtls.LoadConfigFile(*configFile)
	if err != nil {
		log.WithError(err).Fatal("LoadConfigFile")
	}
	tlsCtx, err := fedtls.BuildContext(cfg, fedtls.WithCurveName(*curve))
	if err != nil {
		log.WithError(err).Fatal("BuildContext")
	}
	if cfg.TLSDisabled() {
		log.Warn("tls is disabled, not accepting connections")
		return
	}

	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.Handler())
	promSrv := &http.Server{Addr: *prometheusEpnt, Handler: promMux, ReadHeaderTimeout: 10 * time.Second}
	go promSrv.ListenAndServe()
	log.Infof("serving prometheus metrics at http://%s/", *prometheusEpnt)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("net.Listen")
	}
	defer ln.Close()
	log.Infof("accepting connections on %s", ln.Addr().String())

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Infof("interrupted by signal: %v", sig)
		ln.Close()
	}()

	for {
		serverConn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Info("listener closed")
			return
		}
		go handle(tlsCtx, serverConn)
	}
}

func handle(tlsCtx *fedtls.Context, serverConn net.Conn) {
	logger := log.WithField("remote", serverConn.RemoteAddr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hello, conn, err := fedtls.PeekClientHello(ctx, serverConn)
	if err != nil {
		logger.WithError(err).Warn("PeekClientHello")
		serverConn.Close()
		return
	}
	logger = logger.WithField("sni", hello.ServerName)
	logger.Debugf("ClientHello:\n%s", hello)

	server := tls.Server(conn, tlsCtx.ServerConfig())
	defer server.Close()
	if err := server.HandshakeContext(ctx); err != nil {
		logger.WithError(err).Warn("handshake failed")
		return
	}
	state := server.ConnectionState()
	logger.WithFields(log.Fields{
		"version": fedtls.TLSVersionString(state.Version),
		"cipher":  fedtls.TLSCipherSuiteString(state.CipherSuite),
	}).Info("handshake done")
	fmt.Fprintf(server, "Hello, this is %s\n", tlsCtx.Certificate().Leaf.Subject.CommonName)
	fmt.Fprintf(server, "ServerName: %s\n", hello.ServerName)
	fmt.Fprintf(server, "Cipher: %s\n", fedtls.TLSCipherSuiteString(state.CipherSuite))
}
