package handlers

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferreirogomes/deauto/services"
)

// SessionRequest são os campos de sessão presentes em todo pedido de escrita.
type SessionRequest struct {
	Wallet  string `json:"wallet"`
	ChainID uint64 `json:"chain_id"`
}

// ErrorResponse é o erro estruturado devolvido ao frontend.
type ErrorResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// statusByKind mapeia cada kind de erro do fluxo para um status HTTP.
var statusByKind = map[services.ErrorKind]int{
	services.ErrNoWallet:            http.StatusUnauthorized,
	services.ErrUnsupportedNetwork:  http.StatusBadRequest,
	services.ErrInsufficientFunds:   http.StatusPaymentRequired,
	services.ErrUserRejected:        http.StatusConflict,
	services.ErrValidationFailed:    http.StatusConflict,
	services.ErrEstimationFailed:    http.StatusUnprocessableEntity,
	services.ErrProviderError:       http.StatusBadGateway,
	services.ErrPostConditionFailed: http.StatusInternalServerError,
	services.ErrDataUnavailable:     http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeFlowError traduz um erro do orquestrador/cache para JSON tagueado.
func writeFlowError(w http.ResponseWriter, err error) {
	var fe *services.FlowError
	if errors.As(err, &fe) {
		status, ok := statusByKind[fe.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, ErrorResponse{
			Kind:      string(fe.Kind),
			Message:   fe.Message,
			Retryable: fe.Retryable,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Kind:      "InternalError",
		Message:   err.Error(),
		Retryable: true,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Kind:      "BadRequest",
		Message:   message,
		Retryable: true,
	})
}

// parseSession valida os campos de sessão do pedido.
// A carteira pode vir vazia: o orquestrador responde ErrNoWallet, que é a
// classificação correta, não um erro de parse.
func parseSession(req SessionRequest) (services.Session, error) {
	session := services.Session{ChainID: req.ChainID}
	if req.Wallet == "" {
		return session, nil
	}
	if !common.IsHexAddress(req.Wallet) {
		return services.Session{}, errors.New("endereço de carteira inválido")
	}
	session.Wallet = common.HexToAddress(req.Wallet)
	return session, nil
}

// parseBigInt decodifica um inteiro decimal (token ID ou preço em wei).
func parseBigInt(value string) (*big.Int, bool) {
	if value == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, false
	}
	return parsed, true
}
