package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/bodiman/elocheck/internal/adapters/http/api"
	app "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/config"
	"github.com/bodiman/elocheck/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("ELOCHECK_ADDR", ":8080")
			_ = os.Setenv("ELOCHECK_QUEUE_SIZE", "1000")
			_ = os.Setenv("ELOCHECK_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("ELOCHECK_ADDR")
				_ = os.Unsetenv("ELOCHECK_QUEUE_SIZE")
				_ = os.Unsetenv("ELOCHECK_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When building an updater from config", func() {
			ctx := context.Background()
			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)

			upd := newUpdater(cfg)
			convey.So(upd, convey.ShouldNotBeNil)
			convey.So(upd.InBounds(cfg.MinScore), convey.ShouldBeTrue)
			convey.So(upd.InBounds(cfg.MaxScore), convey.ShouldBeTrue)
			convey.So(upd.InBounds(cfg.MaxScore+1), convey.ShouldBeFalse)
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})

			convey.Convey("And service should be creatable with custom options", func() {
				svc := app.New(
					app.WithWorkerCount(8),
					app.WithQueueSize(2000),
					app.WithPoolSize(100),
				)
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			ctx := context.Background()
			svc := app.New()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			mux := http.NewServeMux()
			api.NewServer(svc, svc, 100).Register(ctx, mux)

			convey.Convey("Then the health endpoint should respond", func() {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When updating service metrics", func() {
			ctx := context.Background()
			svc := app.New()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			convey.So(func() {
				updateServiceMetrics(svc)
				updateSystemMetrics()
			}, convey.ShouldNotPanic)
		})
	})
}
