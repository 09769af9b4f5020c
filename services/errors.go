package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifica falhas do fluxo de transação em variantes acionáveis.
// O frontend decide a mensagem/ação a partir do kind, nunca por string-match.
type ErrorKind string

const (
	ErrNoWallet            ErrorKind = "NoWallet"
	ErrUnsupportedNetwork  ErrorKind = "UnsupportedNetwork"
	ErrInsufficientFunds   ErrorKind = "InsufficientFunds"
	ErrUserRejected        ErrorKind = "UserRejected"
	ErrValidationFailed    ErrorKind = "ValidationFailed"
	ErrEstimationFailed    ErrorKind = "EstimationFailed"
	ErrProviderError       ErrorKind = "ProviderError"
	ErrPostConditionFailed ErrorKind = "PostConditionFailed"
	ErrDataUnavailable     ErrorKind = "DataUnavailable"
)

// retryableByKind: falhas de Validate/Budget são seguras de repetir depois
// que o usuário corrige a condição. UserRejected nunca é repetido
// automaticamente. PostConditionFailed exige revalidação antes de repetir,
// pois a escrita em si foi aceita (repetir cegamente poderia duplicar).
var retryableByKind = map[ErrorKind]bool{
	ErrNoWallet:            true,
	ErrUnsupportedNetwork:  true,
	ErrInsufficientFunds:   true,
	ErrUserRejected:        false,
	ErrValidationFailed:    true,
	ErrEstimationFailed:    true,
	ErrProviderError:       true,
	ErrPostConditionFailed: false,
	ErrDataUnavailable:     true,
}

// FlowError é o erro estruturado devolvido por todas as operações do
// orquestrador: {kind, message, retryable} mais a causa original.
type FlowError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Err       error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError cria um FlowError com o retryable padrão do kind.
func NewFlowError(kind ErrorKind, message string) *FlowError {
	return &FlowError{Kind: kind, Message: message, Retryable: retryableByKind[kind]}
}

// WrapFlowError cria um FlowError preservando a causa para errors.Is/As.
func WrapFlowError(kind ErrorKind, message string, err error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Retryable: retryableByKind[kind], Err: err}
}

// KindOf extrai o ErrorKind de um erro qualquer; "" se não for FlowError.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
