package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/josinaldojr/doc-qa-rag/internal/app"
	"github.com/josinaldojr/doc-qa-rag/internal/config"
	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

func main() {
	urlFlag := flag.String("url", "", "página web a indexar")
	pdfFlag := flag.String("pdf", "", "arquivo PDF local a indexar")
	nameFlag := flag.String("name", rag.DefaultIndexName, "nome do índice salvo")
	question := flag.String("ask", "", "pergunta opcional feita ao índice depois de salvo")
	flag.Parse()

	var src rag.Source
	switch {
	case *urlFlag != "" && *pdfFlag != "":
		log.Fatal("use apenas um modo: --url ou --pdf")
	case *urlFlag != "":
		src = rag.FromURL(*urlFlag)
	case *pdfFlag != "":
		src = rag.FromPDF(*pdfFlag)
	default:
		log.Fatal("obrigatório: --url ou --pdf")
	}

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

	log.Printf("📂 Indexando %s como %q (backend=%s)", src, *nameFlag, cfg.IndexBackend)
	if err := a.Service.SaveEmbedding(ctx, src, *nameFlag); err != nil {
		a.Close()
		log.Fatalf("erro indexando: %v", err)
	}
	log.Println("✅ Importação concluída.")

	if *question == "" {
		return
	}
	answer, err := a.Service.AskFromEmbedding(ctx, *question, *nameFlag)
	if err != nil {
		a.Close()
		log.Fatalf("erro consultando: %v", err)
	}
	log.Println(answer)
}
