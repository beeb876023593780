// This is an example of a client using a fedtls.Dialer to connect to a
// federation server. The server's certificate is not verified.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"github.com/c2FmZQ/fedtls"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8448", "The address of the server, host or host:port.")
	debug := flag.Bool("debug", false, "Toggle debug mode")
	flag.Parse()

	log.SetHandler(cli.Default)
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	factory, err := fedtls.NewClientCreatorFactory(fedtls.Config{})
	if err != nil {
		log.WithError(err).Fatal("NewClientCreatorFactory")
	}
	dialer := &fedtls.Dialer{Factory: factory}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := dialer.Dial(ctx, "tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("Dial")
	}
	defer client.Close()
	state := client.ConnectionState()
	log.WithFields(log.Fields{
		"remote":  client.RemoteAddr().String(),
		"sni":     client.ServerName(),
		"version": fedtls.TLSVersionString(state.Version),
		"cipher":  fedtls.TLSCipherSuiteString(state.CipherSuite),
	}).Info("connected")

	if _, err := io.Copy(os.Stdout, client); err != nil {
		log.WithError(err).Error("io.Copy")
	}
}
