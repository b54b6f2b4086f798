// Command cremerd runs the packaging-line control core: the
// order/pause state machine, the bottle-counter ingest pipeline, and
// the automatic-pause detector, wired together with go.uber.org/fx.
package main

import (
	"context"
	"flag"

	"github.com/abdoElHodaky/cremer-line-core/internal/acumula"
	"github.com/abdoElHodaky/cremer-line-core/internal/autopause"
	"github.com/abdoElHodaky/cremer-line-core/internal/config"
	"github.com/abdoElHodaky/cremer-line-core/internal/counter"
	"github.com/abdoElHodaky/cremer-line-core/internal/eventbus"
	"github.com/abdoElHodaky/cremer-line-core/internal/gpio"
	"github.com/abdoElHodaky/cremer-line-core/internal/metrics"
	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/abdoElHodaky/cremer-line-core/internal/orders"
	"github.com/abdoElHodaky/cremer-line-core/internal/pauses"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/abdoElHodaky/cremer-line-core/internal/validation"
	"github.com/abdoElHodaky/cremer-line-core/internal/visibility"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a configuration file")
	flag.Parse()

	app := fx.New(
		fx.Provide(
			func() (*config.Config, error) { return config.Load(*configPath) },
			newLogger,
		),

		store.Module,
		eventbus.Module,
		monitoring.Module,
		validation.Module,
		metrics.Module,
		counter.Module,
		pauses.Module,
		orders.Module,
		acumula.Module,
		gpio.Module,
		autopause.Module,
		visibility.Module,

		fx.Invoke(wireRefreshHooks, wireCounterIngest),
	)

	app.Run()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Monitoring.LogLevel == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// wireRefreshHooks connects the Order, Pause and Acumula engines to the
// Visibility Projector's refresh hook (spec §4.10), avoiding an import
// cycle between those packages and visibility.
func wireRefreshHooks(orderEngine *orders.Engine, pauseEngine *pauses.Engine, acumulaEngine *acumula.Engine, projector *visibility.Projector) {
	refresh := func(ctx context.Context) { projector.Refresh(ctx) }
	orderEngine.SetVisibilityRefresh(refresh)
	pauseEngine.SetVisibilityRefresh(refresh)
	acumulaEngine.SetVisibilityRefresh(refresh)
}

// wireCounterIngest subscribes Counter Ingest to falling edges on the
// configured counter pin (spec §4.8).
func wireCounterIngest(cfg *config.Config, link *gpio.Link, ingest *counter.Ingest) {
	link.OnChange(func(pin, previous, current int) {
		if pin != cfg.GPIO.CounterPin {
			return
		}
		if previous == 1 && current == 0 {
			ingest.OnFallingEdge(context.Background())
		}
	})
}
