package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/ferreirogomes/deauto/models"
	"github.com/ferreirogomes/deauto/services"
)

// GarageReader expõe a projeção "meus carros".
type GarageReader interface {
	GetOwnedCars(ctx context.Context, owner common.Address) ([]models.Car, error)
}

type GarageHandler struct {
	Orchestrator Orchestrator
	Garage       GarageReader
}

func NewGarageHandler(orchestrator Orchestrator, garage GarageReader) *GarageHandler {
	return &GarageHandler{Orchestrator: orchestrator, Garage: garage}
}

type MintCarRequest struct {
	SessionRequest
	VIN      string `json:"vin"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     uint16 `json:"year"`
	TokenURI string `json:"token_uri"`
}

// MintCar tokeniza um carro novo para a carteira da sessão.
// POST /cars/mint
func (h *GarageHandler) MintCar(w http.ResponseWriter, r *http.Request) {
	var req MintCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "corpo da requisição inválido")
		return
	}
	session, err := parseSession(req.SessionRequest)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.VIN == "" || req.Make == "" || req.Model == "" || req.Year == 0 {
		writeBadRequest(w, "vin, make, model e year são obrigatórios")
		return
	}

	outcome, err := h.Orchestrator.MintCar(r.Context(), session, services.MintRequest{
		VIN:      req.VIN,
		Make:     req.Make,
		Model:    req.Model,
		Year:     req.Year,
		TokenURI: req.TokenURI,
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// GetMyCars lista os carros da carteira informada.
// GET /cars/{owner}
func (h *GarageHandler) GetMyCars(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if !common.IsHexAddress(owner) {
		writeBadRequest(w, "endereço de carteira inválido")
		return
	}

	cars, err := h.Garage.GetOwnedCars(r.Context(), common.HexToAddress(owner))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}
