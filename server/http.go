/******************************************************************************
 *
 *  Description :
 *
 *    Web server initialization and graceful shutdown.
 *
 *****************************************************************************/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/mercury-im/mercury/server/logs"
)

func listenAndServe(addr string, mux *http.ServeMux, stop <-chan bool) error {
	server := &http.Server{
		Addr:    addr,
		Handler: handlers.CombinedLoggingHandler(logs.AccessWriter(), mux),
	}

	httpdone := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		httpdone <- err
	}()

	select {
	case <-stop:
		// Terminating. Close the Accept-ing socket so no new
		// connections are possible, let in-flight requests drain.
		globals.shuttingDown = true
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logs.Err.Println("http: graceful shutdown failed", err)
		}
		<-httpdone

	case err := <-httpdone:
		if err != nil {
			logs.Err.Println("http: listener failed:", err)
			return err
		}
	}

	// Stop publishing statistics.
	statsShutdown()

	// Terminate all sessions.
	globals.sessionStore.Shutdown()

	// Complete all topics and stop the dispatchers.
	globals.broker.Shutdown()

	if err := globals.store.Close(); err != nil {
		logs.Err.Println("http: failed to close store", err)
	}

	logs.Info.Println("http: stopped")
	return nil
}

// signalHandler generates the stop signal on SIGINT/SIGTERM.
func signalHandler() <-chan bool {
	stop := make(chan bool)

	signchan := make(chan os.Signal, 1)
	signal.Notify(signchan, os.Interrupt, syscall.SIGTERM)

	go func() {
		// Wait for a signal. Don't care which signal it is.
		sig := <-signchan
		logs.Info.Printf("signal received: '%s', shutting down", sig)
		stop <- true
	}()

	return stop
}
