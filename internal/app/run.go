package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Run поднимает HTTP-сервер и по отмене ctx останавливает его и закрывает сессии
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.WithField("addr", trimHostPrefix(a.cfg.ListenAddr)).Info("🚀 Server started")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("🛑 Shutting down application")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("⚠️  Server shutdown failed")
		}

		// сессии не переживают рестарт, вместе с ними уходят их документы
		n := a.sessions.Close()
		logrus.WithField("sessions", n).Info("💾 Sessions closed")
		return nil
	})

	return g.Wait()
}
