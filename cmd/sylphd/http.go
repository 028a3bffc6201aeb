package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"sylph/internal/api"
	mdlwr "sylph/internal/middleware"
	"sylph/internal/session"
	"sylph/internal/ws"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"
)

// handleHTTPServer configures and starts the HTTP server on the given
// address. It shuts down the server if any error is received in the error
// channel.
func handleHTTPServer(ctx context.Context, addr string, svc *api.Server, sessions *session.Registry, hub *ws.Hub, wg *sync.WaitGroup, errc chan error, logger *log.Logger, debug bool) {

	// Setup goa log adapter.
	var (
		adapter middleware.Logger
	)
	{
		adapter = middleware.NewLogger(logger)
	}

	// Build the service HTTP request multiplexer and mount the REST
	// endpoints on it.
	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
		svc.Mount(mux)
	}

	// Wrap the multiplexer with additional middlewares. Middlewares mounted
	// here apply to all the service endpoints.
	var handler http.Handler = mux
	{
		if debug {
			handler = httpmdlwr.Debug(mux, os.Stdout)(handler)
		}
		handler = httpmdlwr.Log(adapter)(handler)
		handler = httpmdlwr.RequestID()(handler)
		handler = mdlwr.Trace(handler)
	}

	// The snapshot stream upgrades to WebSocket, so it bypasses the
	// middleware chain and mounts beside it.
	root := http.NewServeMux()
	root.Handle("/ws/vision/", ws.NewHandler(hub, func(id string) bool {
		_, err := sessions.Get(id)
		return err == nil
	}, logger))
	root.Handle("/", handler)

	// Start HTTP server using default configuration, change the code to
	// configure the server as required by your service.
	srv := &http.Server{Addr: addr, Handler: root, ReadHeaderTimeout: time.Second * 60}
	for _, m := range svc.Mounts {
		logger.Printf("HTTP %q mounted on %s %s", m.Method, m.Verb, m.Pattern)
	}
	logger.Printf("HTTP %q mounted on GET /ws/vision/{id}", "SnapshotStream")

	(*wg).Add(1)
	go func() {
		defer (*wg).Done()

		// Start HTTP server in a separate goroutine.
		go func() {
			logger.Printf("HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Printf("shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err != nil {
			logger.Printf("failed to shutdown: %v", err)
		}
	}()
}
