package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"nemochat/internal/api"
	"nemochat/internal/chat"
	"nemochat/internal/config"
	"nemochat/internal/conversation"
	"nemochat/internal/llm"
	"nemochat/internal/storage"
	"nemochat/internal/summary"
	"nemochat/internal/vectorstore"
	"nemochat/internal/worker"
)

func main() {
	demo := flag.Bool("demo", false, "run the scripted example conversation instead of serving HTTP")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("NEMOCHAT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("NEMOCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := vectorstore.NewClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	store := storage.NewStore(db)
	embedder := llm.NewEmbeddingClient(cfg)
	defer embedder.Close()
	generator := llm.NewClient(cfg)
	index := vectorstore.NewIndex(rdb, embedder, cfg)
	provider := conversation.NewProvider(store, summary.NewSummarizer(generator, cfg), cfg)

	orchestrator := chat.New(provider, index, generator, store, chat.DefaultPolicies(cfg.Retrieval.Strict))
	if err := orchestrator.Initialize(context.Background()); err != nil {
		log.Fatalf("initialize pipeline: %v", err)
	}
	defer orchestrator.Close()

	dispatcher := worker.NewDispatcher(orchestrator, cfg.BasicConfig.MaxWorkers)
	defer dispatcher.Stop()

	if *demo {
		runDemo(dispatcher)
		return
	}

	handlers := api.NewHandler(dispatcher, store, index)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func runDemo(dispatcher *worker.Dispatcher) {
	questions := []string{
		"What are the main applications of GPU computing?",
		"How does CUDA programming work?",
		"Can you explain tensor cores in more detail?",
	}

	for _, question := range questions {
		response, err := dispatcher.Submit(context.Background(), "user123", question)
		if err != nil {
			log.Printf("demo: process question: %v", err)
			continue
		}
		fmt.Printf("\nUser: %s\nAssistant: %s\n", question, response)
		time.Sleep(time.Second)
	}
}
