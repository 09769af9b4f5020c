package handlers

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ferreirogomes/deauto/models"
	"github.com/ferreirogomes/deauto/services"
)

// Orchestrator é a superfície do orquestrador consumida pelos handlers.
type Orchestrator interface {
	MintCar(ctx context.Context, session services.Session, req services.MintRequest) (*models.TransactionOutcome, error)
	ListCar(ctx context.Context, session services.Session, tokenID, price *big.Int) (*models.TransactionOutcome, error)
	BuyCar(ctx context.Context, session services.Session, tokenID, expectedPrice *big.Int) (*models.TransactionOutcome, error)
	RemoveListing(ctx context.Context, session services.Session, tokenID *big.Int) (*models.TransactionOutcome, error)
	UpdatePrice(ctx context.Context, session services.Session, tokenID, newPrice *big.Int) (*models.TransactionOutcome, error)
}

// HistoryStore é a superfície do espelho em banco usada pelo endpoint de
// histórico.
type HistoryStore interface {
	GetListingMirror(tokenID string) (models.ListingRecord, bool, error)
	GetTransferHistory(tokenID string) ([]models.TransferRecord, error)
}

// ListingReader expõe as projeções derivadas da blockchain.
type ListingReader interface {
	GetActiveListings(ctx context.Context) ([]models.Listing, error)
}

type MarketHandler struct {
	Orchestrator Orchestrator
	Listings     ListingReader
	History      HistoryStore
}

func NewMarketHandler(orchestrator Orchestrator, listings ListingReader, history HistoryStore) *MarketHandler {
	return &MarketHandler{Orchestrator: orchestrator, Listings: listings, History: history}
}

// GetListings devolve as listagens ativas do marketplace.
// GET /market/listings
func (h *MarketHandler) GetListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.Listings.GetActiveListings(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

type ListCarRequest struct {
	SessionRequest
	TokenID  string `json:"token_id"`
	PriceWei string `json:"price_wei"`
}

// ListCar coloca um carro à venda.
// POST /market/list
func (h *MarketHandler) ListCar(w http.ResponseWriter, r *http.Request) {
	var req ListCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "corpo da requisição inválido")
		return
	}
	session, err := parseSession(req.SessionRequest)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	tokenID, ok := parseBigInt(req.TokenID)
	if !ok {
		writeBadRequest(w, "token_id inválido")
		return
	}
	price, ok := parseBigInt(req.PriceWei)
	if !ok || price.Sign() == 0 {
		writeBadRequest(w, "price_wei inválido")
		return
	}

	outcome, err := h.Orchestrator.ListCar(r.Context(), session, tokenID, price)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type BuyCarRequest struct {
	SessionRequest
	TokenID          string `json:"token_id"`
	ExpectedPriceWei string `json:"expected_price_wei"`
}

// BuyCar compra um carro listado pelo preço que a UI exibiu.
// POST /market/buy
func (h *MarketHandler) BuyCar(w http.ResponseWriter, r *http.Request) {
	var req BuyCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "corpo da requisição inválido")
		return
	}
	session, err := parseSession(req.SessionRequest)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	tokenID, ok := parseBigInt(req.TokenID)
	if !ok {
		writeBadRequest(w, "token_id inválido")
		return
	}
	expectedPrice, ok := parseBigInt(req.ExpectedPriceWei)
	if !ok {
		writeBadRequest(w, "expected_price_wei inválido")
		return
	}

	outcome, err := h.Orchestrator.BuyCar(r.Context(), session, tokenID, expectedPrice)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type RemoveListingRequest struct {
	SessionRequest
	TokenID string `json:"token_id"`
}

// RemoveListing tira um carro de venda.
// POST /market/delist
func (h *MarketHandler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	var req RemoveListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "corpo da requisição inválido")
		return
	}
	session, err := parseSession(req.SessionRequest)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	tokenID, ok := parseBigInt(req.TokenID)
	if !ok {
		writeBadRequest(w, "token_id inválido")
		return
	}

	outcome, err := h.Orchestrator.RemoveListing(r.Context(), session, tokenID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type UpdatePriceRequest struct {
	SessionRequest
	TokenID     string `json:"token_id"`
	NewPriceWei string `json:"new_price_wei"`
}

// UpdatePrice altera o preço de uma listagem ativa.
// POST /market/price
func (h *MarketHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req UpdatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "corpo da requisição inválido")
		return
	}
	session, err := parseSession(req.SessionRequest)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	tokenID, ok := parseBigInt(req.TokenID)
	if !ok {
		writeBadRequest(w, "token_id inválido")
		return
	}
	newPrice, ok := parseBigInt(req.NewPriceWei)
	if !ok || newPrice.Sign() == 0 {
		writeBadRequest(w, "new_price_wei inválido")
		return
	}

	outcome, err := h.Orchestrator.UpdatePrice(r.Context(), session, tokenID, newPrice)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type HistoryResponse struct {
	Listing   *models.ListingRecord   `json:"listing,omitempty"`
	Transfers []models.TransferRecord `json:"transfers"`
}

// GetHistory devolve o histórico espelhado de um token (listener + banco).
// GET /market/history/{tokenID}
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")
	if _, ok := parseBigInt(tokenID); !ok {
		writeBadRequest(w, "token ID inválido")
		return
	}

	resp := HistoryResponse{}
	listing, found, err := h.History.GetListingMirror(tokenID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if found {
		resp.Listing = &listing
	}
	transfers, err := h.History.GetTransferHistory(tokenID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	resp.Transfers = transfers
	writeJSON(w, http.StatusOK, resp)
}
