package blockchain_listener

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ferreirogomes/deauto/models"
	"github.com/ferreirogomes/deauto/services"
	"github.com/ferreirogomes/deauto/storage"
)

// BlockchainListener observa os eventos do marketplace e do NFT para manter
// o espelho em banco sincronizado. O espelho serve o endpoint de histórico;
// a fonte de verdade continua sendo a blockchain e o orquestrador nunca lê
// daqui.
type BlockchainListener struct {
	Ledger       services.LedgerClient
	DB           *storage.DB
	PollInterval time.Duration
}

// NewBlockchainListener cria uma nova instância do listener.
func NewBlockchainListener(ledger services.LedgerClient, db *storage.DB, pollInterval time.Duration) *BlockchainListener {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &BlockchainListener{
		Ledger:       ledger,
		DB:           db,
		PollInterval: pollInterval,
	}
}

// StartListening inicia o loop de sincronização até o context ser cancelado.
// Cada ciclo revarre a janela de lookback; os upserts são idempotentes,
// então reprocessar eventos já vistos é inofensivo.
func (l *BlockchainListener) StartListening(ctx context.Context) {
	log.Println("Iniciando listener da blockchain...")

	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	l.syncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Listener da blockchain encerrado.")
			return
		case <-ticker.C:
			l.syncOnce(ctx)
		}
	}
}

func (l *BlockchainListener) syncOnce(ctx context.Context) {
	l.syncMarketEvents(ctx, "CarListed", l.handleCarListed)
	l.syncMarketEvents(ctx, "CarSold", l.handleCarSold)
	l.syncMarketEvents(ctx, "ListingRemoved", l.handleListingRemoved)
	l.syncMarketEvents(ctx, "PriceUpdated", l.handlePriceUpdated)
	l.syncTransfers(ctx)
}

func (l *BlockchainListener) syncMarketEvents(ctx context.Context, name string, handle func(models.LedgerEvent)) {
	events, err := l.Ledger.QueryEvents(ctx, services.EventFilter{
		Contract: services.ContractMarket,
		Name:     name,
	})
	if err != nil {
		log.Printf("Falha ao consultar eventos %s: %v", name, err)
		return
	}
	for _, event := range events {
		handle(event)
	}
}

func (l *BlockchainListener) handleCarListed(event models.LedgerEvent) {
	tokenID, okID := eventBigInt(event, "tokenId")
	seller, okSeller := eventAddress(event, "seller")
	price, okPrice := eventBigInt(event, "price")
	if !okID || !okSeller || !okPrice {
		log.Printf("Evento CarListed com argumentos inesperados (tx %s), ignorando.", event.TxHash)
		return
	}

	rec := models.ListingRecord{
		ID:          uuid.New().String(),
		TokenID:     tokenID.String(),
		Seller:      seller.Hex(),
		PriceWei:    price.String(),
		Active:      true,
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
	}
	if err := l.DB.UpsertListing(rec); err != nil {
		log.Printf("Falha ao espelhar CarListed do token %s: %v", rec.TokenID, err)
	}
}

func (l *BlockchainListener) handleCarSold(event models.LedgerEvent) {
	tokenID, ok := eventBigInt(event, "tokenId")
	if !ok {
		log.Printf("Evento CarSold sem tokenId (tx %s), ignorando.", event.TxHash)
		return
	}
	if err := l.DB.DeactivateListing(tokenID.String(), event.TxHash, event.BlockNumber); err != nil {
		log.Printf("Falha ao espelhar CarSold do token %s: %v", tokenID.String(), err)
	}
}

func (l *BlockchainListener) handleListingRemoved(event models.LedgerEvent) {
	tokenID, ok := eventBigInt(event, "tokenId")
	if !ok {
		log.Printf("Evento ListingRemoved sem tokenId (tx %s), ignorando.", event.TxHash)
		return
	}
	if err := l.DB.DeactivateListing(tokenID.String(), event.TxHash, event.BlockNumber); err != nil {
		log.Printf("Falha ao espelhar ListingRemoved do token %s: %v", tokenID.String(), err)
	}
}

func (l *BlockchainListener) handlePriceUpdated(event models.LedgerEvent) {
	tokenID, okID := eventBigInt(event, "tokenId")
	newPrice, okPrice := eventBigInt(event, "newPrice")
	if !okID || !okPrice {
		log.Printf("Evento PriceUpdated com argumentos inesperados (tx %s), ignorando.", event.TxHash)
		return
	}
	if err := l.DB.UpdateListingPrice(tokenID.String(), newPrice.String(), event.TxHash, event.BlockNumber); err != nil {
		log.Printf("Falha ao espelhar PriceUpdated do token %s: %v", tokenID.String(), err)
	}
}

func (l *BlockchainListener) syncTransfers(ctx context.Context) {
	events, err := l.Ledger.QueryEvents(ctx, services.EventFilter{
		Contract: services.ContractNFT,
		Name:     "Transfer",
	})
	if err != nil {
		log.Printf("Falha ao consultar eventos Transfer: %v", err)
		return
	}
	for _, event := range events {
		tokenID, okID := eventBigInt(event, "tokenId")
		from, okFrom := eventAddress(event, "from")
		to, okTo := eventAddress(event, "to")
		if !okID || !okFrom || !okTo {
			log.Printf("Evento Transfer com argumentos inesperados (tx %s), ignorando.", event.TxHash)
			continue
		}
		rec := models.TransferRecord{
			ID:          uuid.New().String(),
			TokenID:     tokenID.String(),
			FromAddress: from.Hex(),
			ToAddress:   to.Hex(),
			TxHash:      event.TxHash,
			BlockNumber: event.BlockNumber,
		}
		if err := l.DB.SaveTransfer(rec); err != nil {
			log.Printf("Falha ao gravar transferência do token %s: %v", rec.TokenID, err)
		}
	}
}

func eventBigInt(event models.LedgerEvent, name string) (*big.Int, bool) {
	value, ok := event.Args[name].(*big.Int)
	return value, ok
}

func eventAddress(event models.LedgerEvent, name string) (common.Address, bool) {
	value, ok := event.Args[name].(common.Address)
	return value, ok
}
