package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"payouts-controlplane/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(New),
	fx.Invoke(Run),
)

type Server struct {
	http  *http.Server
	certs *certReloader
	drain time.Duration
}

type Params struct {
	fx.In
	Config *config.Config
	Engine *gin.Engine
}

func New(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:           p.Engine,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       cfg.Server.IdleTimeout,
		},
		drain: cfg.Server.DrainTimeout,
	}

	if !cfg.TLS.Enable {
		return srv, nil
	}

	srv.certs = &certReloader{certPath: cfg.TLS.CertPath, keyPath: cfg.TLS.KeyPath}
	if err := srv.certs.load(); err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	srv.http.TLSConfig = &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: srv.certs.get,
	}
	return srv, nil
}

// certReloader serves the latest key pair found on disk.
type certReloader struct {
	mu       sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

func (c *certReloader) get(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cert == nil {
		return nil, errors.New("no TLS cert loaded")
	}
	return c.cert, nil
}

func (c *certReloader) load() error {
	cert, err := tls.LoadX509KeyPair(c.certPath, c.keyPath)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cert = &cert
	c.mu.Unlock()
	return nil
}

// watch reloads the key pair on rotation until ctx is cancelled.
func (c *certReloader) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("tls watcher unavailable", zap.Error(err))
		return
	}
	defer watcher.Close()

	for _, path := range []string{c.certPath, c.keyPath} {
		if err := watcher.Add(path); err != nil {
			zap.L().Warn("tls watcher add failed", zap.String("path", path), zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.load(); err != nil {
				zap.L().Error("tls reload failed", zap.Error(err))
				continue
			}
			zap.L().Info("tls certificate reloaded", zap.String("path", event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("tls watcher error", zap.Error(err))
		}
	}
}

func Run(lc fx.Lifecycle, srv *Server) {
	watchCtx, stopWatch := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			serve := srv.http.ListenAndServe
			if srv.certs != nil {
				go srv.certs.watch(watchCtx)
				serve = func() error { return srv.http.ListenAndServeTLS("", "") }
			}

			zap.L().Info("payouts api listening", zap.String("addr", srv.http.Addr), zap.Bool("tls", srv.certs != nil))
			go func() {
				if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("payouts api stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopWatch()
			if srv.drain > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, srv.drain)
				defer cancel()
			}
			zap.L().Info("draining payouts api", zap.Duration("timeout", srv.drain))
			return srv.http.Shutdown(ctx)
		},
	})
}
