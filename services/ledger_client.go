package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferreirogomes/deauto/models"
)

// Session identifica a carteira e a rede ativa de uma chamada. Cada operação
// do orquestrador recebe a sua própria sessão, então chamadas concorrentes de
// sessões diferentes não compartilham nada.
type Session struct {
	Wallet  common.Address
	ChainID uint64
}

// HasWallet informa se a sessão tem uma carteira conectada.
func (s Session) HasWallet() bool {
	return s.Wallet != (common.Address{})
}

// ContractRef identifica qual dos dois contratos a chamada alveja.
type ContractRef string

const (
	ContractNFT    ContractRef = "nft"
	ContractMarket ContractRef = "market"
)

// CallDescriptor descreve uma escrita a ser estimada e submetida.
type CallDescriptor struct {
	Contract ContractRef
	Method   string
	Args     []interface{}
	From     common.Address
	Value    *big.Int // nil para chamadas sem pagamento
}

// PendingTx é o handle de uma transação submetida e ainda não confirmada.
type PendingTx struct {
	Hash common.Hash
}

// EventFilter seleciona eventos históricos dentro da janela de lookback.
// IndexedArgs restringe por argumentos indexados (ex: Transfer com to=X).
type EventFilter struct {
	Contract    ContractRef
	Name        string
	IndexedArgs map[string]interface{}
}

// ListingState é o registro de listagem lido diretamente do contrato.
type ListingState struct {
	TokenID       *big.Int
	Seller        common.Address
	Price         *big.Int
	Active        bool
	ListedAtBlock uint64
}

// Capabilities são os recursos opcionais do contrato, resolvidos uma única
// vez na inicialização a partir do ABI; nenhuma chamada faz sondagem de
// recurso por tentativa e erro.
type Capabilities struct {
	HasVINCheck     bool // nft.vinExists(vin)
	HasListingIndex bool // market.getActiveListings()
	HasCarDetails   bool // nft.getCarDetails(tokenId)
}

// LedgerClient é o contrato de capacidades sobre o provedor/carteira.
// Toda chamada é assíncrona, pode falhar ou expirar; o chamador controla o
// timeout pelo context. A implementação concreta fica em
// eth_ledger_client.go; os testes usam um mock.
type LedgerClient interface {
	// Leituras de orçamento.
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call CallDescriptor) (uint64, error)

	// Escrita. Submit é o único ponto onde a carteira externa pode recusar
	// (código 4001); essa recusa vira ErrUserRejected, nunca é repetida.
	Submit(ctx context.Context, call CallDescriptor, gasLimit uint64) (PendingTx, error)
	// AwaitConfirmation bloqueia até a inclusão; sem timeout interno.
	AwaitConfirmation(ctx context.Context, tx PendingTx) (models.LedgerReceipt, error)

	// Consultas históricas e de estado.
	QueryEvents(ctx context.Context, filter EventFilter) ([]models.LedgerEvent, error)
	GetListing(ctx context.Context, tokenID *big.Int) (ListingState, error)
	ActiveListings(ctx context.Context) ([]ListingState, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
	GetCarDetails(ctx context.Context, tokenID *big.Int) (models.CarDetails, error)
	VINExists(ctx context.Context, vin string) (bool, error)

	// Configuração resolvida na inicialização.
	MarketplaceAddress() common.Address
	Capabilities() Capabilities
}
