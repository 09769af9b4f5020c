package services

import (
	"context"
	"log"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferreirogomes/deauto/models"
)

// MetadataFetcher é o colaborador de metadata off-chain (ver
// metadata_service.go); os testes usam um stub.
type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string) (models.CarMetadata, error)
}

// ListingCache deriva "meus carros" e "listagens ativas" a partir dos
// eventos históricos mais releituras de estado, porque a blockchain não
// oferece essas consultas prontas.
//
// Cada chamada recalcula tudo do zero — nenhum estado incremental é mantido
// entre chamadas, então não há cache mutável compartilhado nem lock. A
// recomputação é deliberadamente preferida à complexidade de sincronizar,
// dada a frequência baixa de uso de um marketplace.
type ListingCache struct {
	Ledger   LedgerClient
	Metadata MetadataFetcher
}

// NewListingCache cria o cache de projeções.
func NewListingCache(ledger LedgerClient, metadata MetadataFetcher) *ListingCache {
	return &ListingCache{Ledger: ledger, Metadata: metadata}
}

// GetOwnedCars varre os eventos Transfer endereçados ao dono dentro da
// janela de lookback, deduplica por token e reconfere a propriedade atual
// de cada um — um carro transferido depois do evento varrido não aparece.
//
// Falha da varredura inicial é fatal (ErrDataUnavailable); falha da
// releitura de um item só derruba aquele item, com um warning no log.
func (s *ListingCache) GetOwnedCars(ctx context.Context, owner common.Address) ([]models.Car, error) {
	events, err := s.Ledger.QueryEvents(ctx, EventFilter{
		Contract:    ContractNFT,
		Name:        "Transfer",
		IndexedArgs: map[string]interface{}{"to": owner},
	})
	if err != nil {
		return nil, WrapFlowError(ErrDataUnavailable, "falha ao varrer o histórico de transferências", err)
	}

	cars := make([]models.Car, 0, len(events))
	seen := map[string]bool{}

	// Do mais recente para o mais antigo, deduplicando por token ID.
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		tokenID, ok := event.Args["tokenId"].(*big.Int)
		if !ok {
			log.Printf("Aviso: evento Transfer sem tokenId decodificável (tx %s), ignorando.", event.TxHash)
			continue
		}
		key := tokenID.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		currentOwner, err := s.Ledger.OwnerOf(ctx, tokenID)
		if err != nil {
			log.Printf("Aviso: falha ao reconferir o dono do token %s, descartando: %v", key, err)
			continue
		}
		if currentOwner != owner {
			continue
		}

		car := models.Car{
			TokenID: key,
			Owner:   owner.Hex(),
		}
		s.fillCarDetails(ctx, tokenID, &car)

		// A listagem é auxiliar aqui: falha na leitura só deixa o carro
		// marcado como não listado.
		listing, err := s.Ledger.GetListing(ctx, tokenID)
		if err != nil {
			log.Printf("Aviso: falha ao consultar a listagem do token %s: %v", key, err)
		} else if listing.Active && listing.Seller == owner {
			car.IsListed = true
			car.ListPrice = listing.Price.String()
			car.ListPriceEth = FormatEth(listing.Price)
		}

		cars = append(cars, car)
	}
	return cars, nil
}

// GetActiveListings devolve as listagens ativas: pela consulta direta do
// contrato quando ele a expõe, senão pela varredura de eventos CarListed com
// revalidação item a item. Ordenação: mais recentes primeiro, empate por
// token ID crescente.
func (s *ListingCache) GetActiveListings(ctx context.Context) ([]models.Listing, error) {
	var listings []models.Listing
	var err error
	if s.Ledger.Capabilities().HasListingIndex {
		listings, err = s.listingsFromIndex(ctx)
	} else {
		listings, err = s.listingsFromEvents(ctx)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(listings, func(i, j int) bool {
		if listings[i].ListedAtBlock != listings[j].ListedAtBlock {
			return listings[i].ListedAtBlock > listings[j].ListedAtBlock
		}
		a, _ := new(big.Int).SetString(listings[i].TokenID, 10)
		b, _ := new(big.Int).SetString(listings[j].TokenID, 10)
		return a.Cmp(b) < 0
	})
	return listings, nil
}

func (s *ListingCache) listingsFromIndex(ctx context.Context) ([]models.Listing, error) {
	states, err := s.Ledger.ActiveListings(ctx)
	if err != nil {
		return nil, WrapFlowError(ErrDataUnavailable, "falha ao consultar as listagens ativas", err)
	}
	listings := make([]models.Listing, 0, len(states))
	for _, state := range states {
		if !state.Active {
			continue
		}
		listings = append(listings, s.buildListing(ctx, state, state.ListedAtBlock))
	}
	return listings, nil
}

func (s *ListingCache) listingsFromEvents(ctx context.Context) ([]models.Listing, error) {
	events, err := s.Ledger.QueryEvents(ctx, EventFilter{
		Contract: ContractMarket,
		Name:     "CarListed",
	})
	if err != nil {
		// Indisponibilidade é exposta, nunca mascarada com dados inventados;
		// a UI oferece retry.
		return nil, WrapFlowError(ErrDataUnavailable, "falha ao varrer o histórico de listagens", err)
	}

	listings := make([]models.Listing, 0, len(events))
	seen := map[string]bool{}

	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		tokenID, ok := event.Args["tokenId"].(*big.Int)
		if !ok {
			log.Printf("Aviso: evento CarListed sem tokenId decodificável (tx %s), ignorando.", event.TxHash)
			continue
		}
		key := tokenID.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		// Revalida contra o estado atual: o evento pode ser de uma listagem
		// já vendida ou removida.
		state, err := s.Ledger.GetListing(ctx, tokenID)
		if err != nil {
			log.Printf("Aviso: falha ao revalidar a listagem do token %s, descartando: %v", key, err)
			continue
		}
		if !state.Active {
			continue
		}

		listings = append(listings, s.buildListing(ctx, state, event.BlockNumber))
	}
	return listings, nil
}

// buildListing monta a projeção de uma listagem com metadata e detalhes do
// carro; qualquer falha de metadata degrada para os defaults.
func (s *ListingCache) buildListing(ctx context.Context, state ListingState, listedAtBlock uint64) models.Listing {
	key := state.TokenID.String()
	listing := models.Listing{
		TokenID:       key,
		Seller:        state.Seller.Hex(),
		Price:         state.Price.String(),
		PriceEth:      FormatEth(state.Price),
		Active:        true,
		ListedAtBlock: listedAtBlock,
	}

	var car models.Car
	car.TokenID = key
	s.fillCarDetails(ctx, state.TokenID, &car)
	listing.Name = car.Name
	listing.Image = car.Image
	listing.Description = car.Description
	listing.Attributes = car.Attributes
	listing.Details = car.Details
	return listing
}

// fillCarDetails preenche metadata off-chain e detalhes on-chain do carro.
// Nada aqui é fatal: metadata indisponível vira placeholder.
func (s *ListingCache) fillCarDetails(ctx context.Context, tokenID *big.Int, car *models.Car) {
	uri, err := s.Ledger.TokenURI(ctx, tokenID)
	if err != nil {
		log.Printf("Aviso: falha ao consultar o tokenURI do token %s: %v", car.TokenID, err)
	}
	car.TokenURI = uri

	metadata := models.CarMetadata{}
	if uri != "" {
		fetched, err := s.Metadata.Fetch(ctx, uri)
		if err != nil {
			log.Printf("Aviso: metadata do token %s indisponível, usando defaults: %v", car.TokenID, err)
		} else {
			metadata = fetched
		}
	}
	metadata = withDefaults(metadata, car.TokenID)
	car.Name = metadata.Name
	car.Image = metadata.Image
	car.Description = metadata.Description
	car.Attributes = metadata.Attributes

	if s.Ledger.Capabilities().HasCarDetails {
		details, err := s.Ledger.GetCarDetails(ctx, tokenID)
		if err != nil {
			log.Printf("Aviso: detalhes on-chain do token %s indisponíveis: %v", car.TokenID, err)
		} else {
			car.Details = details
		}
	}
}
