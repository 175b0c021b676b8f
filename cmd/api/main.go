package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josinaldojr/doc-qa-rag/internal/app"
	"github.com/josinaldojr/doc-qa-rag/internal/config"
	apphttp "github.com/josinaldojr/doc-qa-rag/internal/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuração inválida: %v", err)
	}

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("falha ao iniciar: %v", err)
	}
	defer a.Close()

	h := apphttp.NewHandler(a.Service)
	router := apphttp.NewRouter(h)
	handler := apphttp.CORS("http://localhost:3000", "http://127.0.0.1:3000")(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("API listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
