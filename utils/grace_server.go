package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	defaultReadTimeout     = 60 * time.Second
	defaultWriteTimeout    = defaultReadTimeout
	defaultShutdownTimeout = 30 * time.Second

	gracefulEnvKey   = "NASDA_GRACEFUL"
	gracefulEnvValue = gracefulEnvKey + "=1"
	// inherited listener is the first fd after stdin/stdout/stderr
	gracefulListenerFD = 3
)

// GracefulServer wraps http.Server with signal driven shutdown and SIGUSR2 hot restart.
type GracefulServer struct {
	*http.Server

	listener        net.Listener
	inherited       bool
	shutdownTimeout time.Duration
	signals         chan os.Signal
	done            chan struct{}
}

// NewGracefulServer creates a server with read/write timeouts.
func NewGracefulServer(addr string, handler http.Handler) *GracefulServer {
	return &GracefulServer{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       defaultReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      defaultWriteTimeout,
		},
		inherited:       os.Getenv(gracefulEnvKey) != "",
		shutdownTimeout: defaultShutdownTimeout,
		signals:         make(chan os.Signal, 1),
		done:            make(chan struct{}),
	}
}

// ListenAndServe serves until SIGINT/SIGTERM, or until a SIGUSR2 restart hands the listener over.
func (srv *GracefulServer) ListenAndServe() error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.listener = ln

	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer signal.Stop(srv.signals)
	go srv.handleSignals()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-srv.done
		return nil
	}
	return err
}

func (srv *GracefulServer) listen() (net.Listener, error) {
	if srv.inherited {
		ln, err := net.FileListener(os.NewFile(gracefulListenerFD, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *GracefulServer) handleSignals() {
	for sig := range srv.signals {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			Sugar.Infof("received %s, shutting down HTTP server", sig)
			srv.shutdown()
			return
		case syscall.SIGUSR2:
			pid, err := srv.forkChild()
			if err != nil {
				Sugar.Errorf("hot restart failed, continuing to serve: %v", err)
				continue
			}
			Sugar.Infof("hot restart started pid=%d, draining old process", pid)
			srv.shutdown()
			return
		}
	}
}

func (srv *GracefulServer) shutdown() {
	defer close(srv.done)
	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return
	}
	Sugar.Info("HTTP server shutdown complete")
}

// forkChild re-executes the binary with the listening socket as fd 3.
func (srv *GracefulServer) forkChild() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, errors.New("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvValue {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvValue)

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}

// GraceServer starts an HTTP server with graceful capabilities.
func GraceServer(addr string, handler http.Handler) error {
	return NewGracefulServer(addr, handler).ListenAndServe()
}
