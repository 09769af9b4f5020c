package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ferreirogomes/deauto/handlers"
	"github.com/ferreirogomes/deauto/models"
	"github.com/ferreirogomes/deauto/services"
)

// MockOrchestrator é uma implementação mock do handlers.Orchestrator.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) MintCar(ctx context.Context, session services.Session, req services.MintRequest) (*models.TransactionOutcome, error) {
	args := m.Called(ctx, session, req)
	return args.Get(0).(*models.TransactionOutcome), args.Error(1)
}
func (m *MockOrchestrator) ListCar(ctx context.Context, session services.Session, tokenID, price *big.Int) (*models.TransactionOutcome, error) {
	args := m.Called(ctx, session, tokenID, price)
	return args.Get(0).(*models.TransactionOutcome), args.Error(1)
}
func (m *MockOrchestrator) BuyCar(ctx context.Context, session services.Session, tokenID, expectedPrice *big.Int) (*models.TransactionOutcome, error) {
	args := m.Called(ctx, session, tokenID, expectedPrice)
	return args.Get(0).(*models.TransactionOutcome), args.Error(1)
}
func (m *MockOrchestrator) RemoveListing(ctx context.Context, session services.Session, tokenID *big.Int) (*models.TransactionOutcome, error) {
	args := m.Called(ctx, session, tokenID)
	return args.Get(0).(*models.TransactionOutcome), args.Error(1)
}
func (m *MockOrchestrator) UpdatePrice(ctx context.Context, session services.Session, tokenID, newPrice *big.Int) (*models.TransactionOutcome, error) {
	args := m.Called(ctx, session, tokenID, newPrice)
	return args.Get(0).(*models.TransactionOutcome), args.Error(1)
}

// MockListingReader é uma implementação mock do handlers.ListingReader.
type MockListingReader struct {
	mock.Mock
}

func (m *MockListingReader) GetActiveListings(ctx context.Context) ([]models.Listing, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Listing), args.Error(1)
}

// MockHistoryStore é uma implementação mock do handlers.HistoryStore.
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) GetListingMirror(tokenID string) (models.ListingRecord, bool, error) {
	args := m.Called(tokenID)
	return args.Get(0).(models.ListingRecord), args.Bool(1), args.Error(2)
}
func (m *MockHistoryStore) GetTransferHistory(tokenID string) ([]models.TransferRecord, error) {
	args := m.Called(tokenID)
	return args.Get(0).([]models.TransferRecord), args.Error(1)
}

func newMarketRouter(h *handlers.MarketHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/market/listings", h.GetListings)
	r.Post("/market/buy", h.BuyCar)
	r.Post("/market/list", h.ListCar)
	r.Get("/market/history/{tokenID}", h.GetHistory)
	return r
}

// TestGetListings testa a listagem ativa do marketplace.
func TestGetListings(t *testing.T) {
	mockOrch := new(MockOrchestrator)
	mockListings := new(MockListingReader)
	mockHistory := new(MockHistoryStore)
	handler := handlers.NewMarketHandler(mockOrch, mockListings, mockHistory)

	mockListings.On("GetActiveListings", mock.Anything).Return([]models.Listing{
		{TokenID: "7", Seller: "0x2222222222222222222222222222222222222222", Price: "500", PriceEth: "0.0000000000000005", Active: true},
	}, nil).Once()

	req := httptest.NewRequest("GET", "/market/listings", nil)
	rr := httptest.NewRecorder()
	newMarketRouter(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var listings []models.Listing
	err := json.Unmarshal(rr.Body.Bytes(), &listings)
	assert.Nil(t, err)
	assert.Len(t, listings, 1)
	assert.Equal(t, "7", listings[0].TokenID)
	mockListings.AssertExpectations(t)
}

// TestGetListingsIndisponivel testa o mapeamento de DataUnavailable para 503.
func TestGetListingsIndisponivel(t *testing.T) {
	mockOrch := new(MockOrchestrator)
	mockListings := new(MockListingReader)
	handler := handlers.NewMarketHandler(mockOrch, mockListings, new(MockHistoryStore))

	mockListings.On("GetActiveListings", mock.Anything).
		Return([]models.Listing(nil), services.NewFlowError(services.ErrDataUnavailable, "falha ao varrer o histórico de listagens")).Once()

	req := httptest.NewRequest("GET", "/market/listings", nil)
	rr := httptest.NewRecorder()
	newMarketRouter(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var errResp handlers.ErrorResponse
	err := json.Unmarshal(rr.Body.Bytes(), &errResp)
	assert.Nil(t, err)
	assert.Equal(t, "DataUnavailable", errResp.Kind)
	assert.True(t, errResp.Retryable)
	mockListings.AssertExpectations(t)
}

// TestBuyCarEndpoint testa a compra via API com o resultado confirmado.
func TestBuyCarEndpoint(t *testing.T) {
	mockOrch := new(MockOrchestrator)
	handler := handlers.NewMarketHandler(mockOrch, new(MockListingReader), new(MockHistoryStore))

	outcome := &models.TransactionOutcome{
		TransactionHash: "0xdef2",
		Receipt:         models.LedgerReceipt{TxHash: "0xdef2", Status: 1},
		TokenID:         "7",
	}
	mockOrch.On("BuyCar", mock.Anything, mock.AnythingOfType("services.Session"), big.NewInt(7), big.NewInt(500)).
		Return(outcome, nil).Once()

	body, _ := json.Marshal(map[string]interface{}{
		"wallet":             "0x1111111111111111111111111111111111111111",
		"chain_id":           11155111,
		"token_id":           "7",
		"expected_price_wei": "500",
	})
	req := httptest.NewRequest("POST", "/market/buy", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	newMarketRouter(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got models.TransactionOutcome
	err := json.Unmarshal(rr.Body.Bytes(), &got)
	assert.Nil(t, err)
	assert.Equal(t, "0xdef2", got.TransactionHash)
	assert.Equal(t, "7", got.TokenID)
	mockOrch.AssertExpectations(t)
}

// TestBuyCarEndpointSaldoInsuficiente testa o mapeamento de
// InsufficientFunds para 402 com o erro estruturado.
func TestBuyCarEndpointSaldoInsuficiente(t *testing.T) {
	mockOrch := new(MockOrchestrator)
	handler := handlers.NewMarketHandler(mockOrch, new(MockListingReader), new(MockHistoryStore))

	mockOrch.On("BuyCar", mock.Anything, mock.AnythingOfType("services.Session"), big.NewInt(7), big.NewInt(500)).
		Return((*models.TransactionOutcome)(nil), services.NewFlowError(services.ErrInsufficientFunds, "saldo de ETH insuficiente")).Once()

	body, _ := json.Marshal(map[string]interface{}{
		"wallet":             "0x1111111111111111111111111111111111111111",
		"chain_id":           11155111,
		"token_id":           "7",
		"expected_price_wei": "500",
	})
	req := httptest.NewRequest("POST", "/market/buy", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	newMarketRouter(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusPaymentRequired, rr.Code)

	var errResp handlers.ErrorResponse
	err := json.Unmarshal(rr.Body.Bytes(), &errResp)
	assert.Nil(t, err)
	assert.Equal(t, "InsufficientFunds", errResp.Kind)
	assert.True(t, errResp.Retryable)
	mockOrch.AssertExpectations(t)
}

// TestListCarEndpointCarteiraInvalida testa a rejeição de endereço malformado
// antes de chegar ao orquestrador.
func TestListCarEndpointCarteiraInvalida(t *testing.T) {
	mockOrch := new(MockOrchestrator)
	handler := handlers.NewMarketHandler(mockOrch, new(MockListingReader), new(MockHistoryStore))

	body, _ := json.Marshal(map[string]interface{}{
		"wallet":    "nao-e-um-endereco",
		"chain_id":  11155111,
		"token_id":  "7",
		"price_wei": "500",
	})
	req := httptest.NewRequest("POST", "/market/list", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	newMarketRouter(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockOrch.AssertNotCalled(t, "ListCar", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestGetHistory testa o histórico espelhado de um token.
func TestGetHistory(t *testing.T) {
	mockHistory := new(MockHistoryStore)
	handler := handlers.NewMarketHandler(new(MockOrchestrator), new(MockListingReader), mockHistory)

	mockHistory.On("GetListingMirror", "7").Return(models.ListingRecord{
		TokenID: "7", Seller: "0x2222222222222222222222222222222222222222", PriceWei: "500", Active: true,
	}, true, nil).Once()
	mockHistory.On("GetTransferHistory", "7").Return([]models.TransferRecord{
		{TokenID: "7", FromAddress: "0x0000000000000000000000000000000000000000", ToAddress: "0x2222222222222222222222222222222222222222"},
	}, nil).Once()

	req := httptest.NewRequest("GET", "/market/history/7", nil)
	rr := httptest.NewRecorder()
	newMarketRouter(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp handlers.HistoryResponse
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.Nil(t, err)
	assert.NotNil(t, resp.Listing)
	assert.Len(t, resp.Transfers, 1)
	mockHistory.AssertExpectations(t)
}
