package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ferreirogomes/deauto/blockchain_listener"
	"github.com/ferreirogomes/deauto/config"
	"github.com/ferreirogomes/deauto/handlers"
	"github.com/ferreirogomes/deauto/services"
	"github.com/ferreirogomes/deauto/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Falha fatal ao carregar configuração: %v", err)
	}

	db, err := storage.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Falha fatal ao conectar ao banco de dados e aplicar migrações: %v", err)
	}
	defer db.Close()

	contracts, err := services.NewContractSet(cfg.NFTAddress, cfg.MarketAddress)
	if err != nil {
		log.Fatalf("Falha ao resolver os contratos: %v", err)
	}

	var signer services.SignerFunc
	if cfg.SignerKey != "" {
		var signerAddress common.Address
		signer, signerAddress, err = services.NewKeySigner(cfg.SignerKey, new(big.Int).SetUint64(cfg.ChainID))
		if err != nil {
			log.Fatalf("Falha ao inicializar o signatário: %v", err)
		}
		log.Printf("Signatário carregado: %s", signerAddress.Hex())
	} else {
		log.Println("Nenhum signatário configurado; servidor em modo só-leitura.")
	}

	ledger, err := services.NewEthLedgerClient(cfg.RPCURL, contracts, signer, cfg.LookbackBlocks)
	if err != nil {
		log.Fatalf("Falha ao inicializar cliente Ethereum: %v", err)
	}
	defer ledger.Close()
	log.Printf("Capabilities dos contratos: %+v", ledger.Capabilities())

	orchestrator := services.NewTransactionOrchestrator(ledger)
	cache := services.NewListingCache(ledger, services.NewMetadataService())

	marketHandler := handlers.NewMarketHandler(orchestrator, cache, db)
	garageHandler := handlers.NewGarageHandler(orchestrator, cache)
	networkHandler := handlers.NewNetworkHandler()

	// Inicializa e inicia o listener da blockchain em uma goroutine separada
	listener := blockchain_listener.NewBlockchainListener(ledger, db, cfg.PollInterval)
	listenerCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	go listener.StartListening(listenerCtx)
	log.Println("Listener da blockchain iniciado.")

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.URLFormat)

	r.Route("/cars", func(r chi.Router) {
		r.Post("/mint", garageHandler.MintCar)
		r.Get("/{owner}", garageHandler.GetMyCars)
	})

	r.Route("/market", func(r chi.Router) {
		r.Get("/listings", marketHandler.GetListings)
		r.Post("/list", marketHandler.ListCar)
		r.Post("/buy", marketHandler.BuyCar)
		r.Post("/delist", marketHandler.RemoveListing)
		r.Post("/price", marketHandler.UpdatePrice)
		r.Get("/history/{tokenID}", marketHandler.GetHistory)
	})

	r.Get("/networks/{chainID}", networkHandler.GetNetwork)

	fmt.Printf("Servidor backend rodando na porta %s...\n", cfg.Port)
	log.Fatal(http.ListenAndServe(cfg.Port, r))
}
