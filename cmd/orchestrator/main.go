package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opst/modelflow/cmd/orchestrator/recurring"
	"github.com/opst/modelflow/cmd/orchestrator/runner"
	"github.com/opst/modelflow/pkg/configs"
	kdb "github.com/opst/modelflow/pkg/db"
	kpg "github.com/opst/modelflow/pkg/db/postgres"
	"github.com/opst/modelflow/pkg/engine"
	"github.com/opst/modelflow/pkg/kubeutil"
	"github.com/opst/modelflow/pkg/metrics"
	"github.com/opst/modelflow/pkg/routing"
	"github.com/opst/modelflow/pkg/utils/try"
	"github.com/opst/modelflow/pkg/workflows/createmodel"
	"github.com/opst/modelflow/pkg/workflows/updatemodel"
	"github.com/opst/modelflow/pkg/workloads/k8s"
	"github.com/opst/modelflow/pkg/workloads/registry"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	pconfig := flag.String(
		"config", os.Getenv(configs.EnvConfigPath),
		fmt.Sprintf("path to config file (env: %s)", configs.EnvConfigPath),
	)
	policy := recurring.NewFlag(recurring.Forever(time.Second))
	flag.Var(
		policy, "policy",
		`loop policy (syntax: forever[:COOLDOWN]|backlog).`+
			` "forever[:COOLDOWN]" = run forever until error. When no instances are due, `+
			`wait COOLDOWN (optional duration. default: 0) as inteval.`+
			` "backlog" = run until error or no instances are due.`,
	)
	pmetrics := flag.String("metrics", ":9090", "address to serve /metrics. empty to disable.")
	flag.Parse()

	{
		// watch config
		wctx, cancel, err := configs.UntilModifyContext(ctx, *pconfig)
		if err != nil {
			logger.Fatal(err)
		}
		defer cancel()
		ctx = wctx
	}

	conf := try.To(configs.LoadConfig(*pconfig)).OrFatal(logger)

	// a lease outlives the cycle, so that it is not taken by others while stepping.
	db := try.To(kpg.New(
		ctx, conf.Database(), kpg.WithLease(cycleTimeout(conf.Workflows())+time.Minute),
	)).OrFatal(logger)
	defer db.Close()
	if err := requireLatestSchema(ctx, db.Schema()); err != nil {
		logger.Fatal(err)
	}

	clientset := try.To(kubeutil.ConnectToK8s(conf.Cluster().Kubeconfig())).OrFatal(logger)
	cluster := k8s.AttachCluster(
		k8s.WrapK8sClient(clientset),
		conf.Cluster().Namespace(),
		conf.Cluster().Domain(),
	)

	copierOptions := []registry.Option{
		registry.WithLogger(byLogger(logger, Copied(), WithPrefix("[registry] "))),
	}
	if conf.Registry().Insecure() {
		copierOptions = append(copierOptions, registry.Insecure())
	}
	copier := registry.New(copierOptions...)
	defer copier.Wait()

	routerURL := try.To(url.Parse(conf.Routing().URL())).OrFatal(logger)
	router := routing.New(routerURL)

	m := metrics.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := m.Register(reg); err != nil {
		logger.Fatal(err)
	}

	observers := []engine.Option{
		engine.WithObserver(engine.LogObserver(byLogger(logger, Copied(), WithPrefix("[engine] ")))),
		engine.WithObserver(m),
	}

	engines := runner.Engines{
		createmodel.Name: try.To(createmodel.New(
			createmodel.ConfigFrom(conf),
			createmodel.Deps{
				Models: db.Models(),
				Images: copier,
				Stacks: cluster.Stacks(),
				Router: router,
			},
			observers...,
		)).OrFatal(logger),
		updatemodel.Name: try.To(updatemodel.New(
			updatemodel.ConfigFrom(conf),
			updatemodel.Deps{
				Models: db.Models(),
				Scaler: cluster.Scaler(),
			},
			observers...,
		)).OrFatal(logger),
	}

	if addr := *pmetrics; addr != "" {
		server := &http.Server{
			Addr:    addr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %s", err)
			}
		}()
		defer server.Close()
	}

	logger.Printf(`start runner /w policy "%s"`, policy.String())

	err := StartRunner(
		ctx, logger, db.Instances(), engines,
		RunnerManifest{
			Policy:       recurring.UntilError(policy.Policy),
			CycleTimeout: cycleTimeout(conf.Workflows()),
		},
	)

	if err == nil {
		return
	} else if errors.Is(err, context.Canceled) {
		logger.Fatal(err, " (loop context is cancelled by: ", context.Cause(ctx), ")")
	}
	logger.Fatal(err)
}

// cycleTimeout gives a cycle enough time to finish the longest action.
func cycleTimeout(w *configs.WorkflowsConfig) time.Duration {
	longest := max(w.ActionTimeout(), w.StackSubmitTimeout())
	return longest + time.Minute
}

func requireLatestSchema(ctx context.Context, schema kdb.SchemaInterface) error {
	current, err := schema.Version(ctx)
	if err != nil {
		return err
	}
	latest, err := schema.Latest()
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf(
			"database schema is v%d, but v%d is required. run schema_upgrader", current, latest,
		)
	}
	return nil
}
