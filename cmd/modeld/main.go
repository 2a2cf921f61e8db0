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
	"path"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opst/modelflow/cmd/modeld/handlers"
	"github.com/opst/modelflow/pkg/configs"
	kdb "github.com/opst/modelflow/pkg/db"
	kpg "github.com/opst/modelflow/pkg/db/postgres"
	"github.com/opst/modelflow/pkg/echoutil"
	"github.com/opst/modelflow/pkg/routing"
)

func main() {
	configPath := flag.String(
		"config", os.Getenv(configs.EnvConfigPath),
		fmt.Sprintf("modelflow config path. (env: %s)", configs.EnvConfigPath),
	)
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	flag.Parse()

	e := echo.New()
	e.Pre(middleware.AddTrailingSlash())

	// set log
	echoutil.SetLevel(e, *loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	// read configfile
	conf, err := configs.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctx, cancelWatch, err := configs.UntilModifyContext(ctx, *configPath)
	if err != nil {
		log.Fatalf("can not watch configration: %s", err)
	}
	defer cancelWatch()

	db, err := getDBAccesor(ctx, conf.Database())
	if err != nil {
		log.Fatalf("can not connect to database: %s", err)
	}
	defer db.Close()

	routerURL, err := url.Parse(conf.Routing().URL())
	if err != nil {
		log.Fatalf("routing url is wrong: %s", err)
	}
	router := routing.New(routerURL)

	api := root("/api")

	{
		modelId := "modelId"
		e.GET(api("models"), handlers.ListModelsHandler(db.Models()))
		e.POST(api("models"), handlers.CreateModelHandler(db.Models(), db.Instances()))
		e.GET(api("models/:modelId"), handlers.GetModelHandler(db.Models(), modelId))
		e.PUT(
			api("models/:modelId"),
			handlers.UpdateModelHandler(db.Models(), db.Instances(), modelId),
		)
		e.DELETE(
			api("models/:modelId"),
			handlers.DeleteModelHandler(db.Models(), db.Instances(), router, modelId),
		)
		e.GET(
			api("models/:modelId/workflows"),
			handlers.FindWorkflowsHandler(db.Instances(), modelId),
		)
	}

	{
		e.GET(
			api("workflows/:instanceId"),
			handlers.GetWorkflowHandler(db.Instances(), "instanceId"),
		)
	}

	e.GET("/metrics/", echo.WrapHandler(promhttp.Handler()))

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	go func() {
		<-ctx.Done()
		log.Printf("shutting down: %s", context.Cause(ctx))
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			log.Printf("error on shutdown: %s", err)
		}
	}()

	addr := fmt.Sprintf(":%d", conf.API().Port())
	cert, key := *pcert, *pkey
	if cert != "" && key != "" {
		err = e.StartTLS(addr, cert, key)
	} else {
		err = e.Start(addr)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal(err)
	}
}

func getDBAccesor(ctx context.Context, dburi string) (kdb.Database, error) {
	return kpg.New(ctx, dburi)
}

// root creates api path factory.
//
// It receives relative path from root, and returns "/"-terminated full path.
func root(r string) func(...string) string {
	return func(s ...string) string {
		parts := append([]string{r}, s...)
		return path.Join(parts...) + "/"
	}
}
