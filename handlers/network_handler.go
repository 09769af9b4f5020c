package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferreirogomes/deauto/models"
)

type NetworkHandler struct{}

func NewNetworkHandler() *NetworkHandler {
	return &NetworkHandler{}
}

type NetworkResponse struct {
	Supported bool                `json:"supported"`
	Network   *models.NetworkInfo `json:"network,omitempty"`
}

// GetNetwork informa se um chain ID é suportado e os seus dados.
// Rede desconhecida não é erro: a navegação continua em modo só-leitura.
// GET /networks/{chainID}
func (h *NetworkHandler) GetNetwork(w http.ResponseWriter, r *http.Request) {
	chainID, err := strconv.ParseUint(chi.URLParam(r, "chainID"), 10, 64)
	if err != nil {
		writeBadRequest(w, "chain ID inválido")
		return
	}

	info, ok := models.LookupNetwork(chainID)
	if !ok {
		writeJSON(w, http.StatusOK, NetworkResponse{Supported: false})
		return
	}
	writeJSON(w, http.StatusOK, NetworkResponse{Supported: true, Network: &info})
}
