package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ferreirogomes/deauto/models"
)

// walletRejectedCode é o código JSON-RPC devolvido quando o usuário recusa
// a assinatura na carteira (EIP-1193).
const walletRejectedCode = 4001

// receiptPollInterval é o intervalo entre tentativas de buscar o receipt.
const receiptPollInterval = 2 * time.Second

// SignerFunc assina uma transação em nome da carteira externa.
// Pode devolver um rpc.Error com código 4001 quando o usuário recusa.
type SignerFunc func(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error)

// NewKeySigner cria um SignerFunc a partir de uma chave privada hex.
// Usado quando o backend custodia a chave (ambiente de desenvolvimento);
// em produção o SignerFunc encaminha para o provedor de carteira.
func NewKeySigner(hexKey string, chainID *big.Int) (SignerFunc, common.Address, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("falha ao carregar chave privada do signatário: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	signer := types.LatestSignerForChainID(chainID)
	return func(_ context.Context, _ common.Address, tx *types.Transaction) (*types.Transaction, error) {
		return types.SignTx(tx, signer, key)
	}, from, nil
}

// EthLedgerClient implementa LedgerClient sobre um nó Ethereum via ethclient.
type EthLedgerClient struct {
	client    *ethclient.Client
	contracts *ContractSet
	signer    SignerFunc
	caps      Capabilities
	lookback  uint64 // Janela de blocos para consultas históricas
}

// NewEthLedgerClient conecta ao nó RPC e resolve o descriptor dos contratos
// e as capabilities uma única vez.
func NewEthLedgerClient(rpcURL string, contracts *ContractSet, signer SignerFunc, lookbackBlocks uint64) (*EthLedgerClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao nó Ethereum em %s: %w", rpcURL, err)
	}

	return &EthLedgerClient{
		client:    client,
		contracts: contracts,
		signer:    signer,
		caps:      contracts.resolveCapabilities(),
		lookback:  lookbackBlocks,
	}, nil
}

// Close encerra a conexão RPC.
func (c *EthLedgerClient) Close() {
	c.client.Close()
}

func (c *EthLedgerClient) MarketplaceAddress() common.Address {
	return c.contracts.MarketAddress
}

func (c *EthLedgerClient) Capabilities() Capabilities {
	return c.caps
}

func (c *EthLedgerClient) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("falha ao consultar saldo de %s: %w", address.Hex(), err)
	}
	return balance, nil
}

func (c *EthLedgerClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao consultar preço do gas: %w", err)
	}
	return price, nil
}

func (c *EthLedgerClient) EstimateGas(ctx context.Context, call CallDescriptor) (uint64, error) {
	contractABI, to, err := c.contracts.abiFor(call.Contract)
	if err != nil {
		return 0, err
	}
	data, err := contractABI.Pack(call.Method, call.Args...)
	if err != nil {
		return 0, fmt.Errorf("falha ao codificar chamada %s: %w", call.Method, err)
	}
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  call.From,
		To:    &to,
		Value: call.Value,
		Data:  data,
	})
	if err != nil {
		// A estimativa falha quando a chamada reverteria.
		return 0, fmt.Errorf("falha ao estimar gas de %s: %w", call.Method, err)
	}
	return gas, nil
}

// Submit constrói, assina (via carteira externa) e envia a escrita.
// Recusa do usuário (código 4001) vira ErrUserRejected; qualquer outra
// falha vira ErrProviderError.
func (c *EthLedgerClient) Submit(ctx context.Context, call CallDescriptor, gasLimit uint64) (PendingTx, error) {
	if c.signer == nil {
		return PendingTx{}, NewFlowError(ErrProviderError, "nenhum signatário configurado; servidor em modo só-leitura")
	}
	contractABI, to, err := c.contracts.abiFor(call.Contract)
	if err != nil {
		return PendingTx{}, err
	}
	data, err := contractABI.Pack(call.Method, call.Args...)
	if err != nil {
		return PendingTx{}, fmt.Errorf("falha ao codificar chamada %s: %w", call.Method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, call.From)
	if err != nil {
		return PendingTx{}, WrapFlowError(ErrProviderError, "falha ao obter nonce", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return PendingTx{}, WrapFlowError(ErrProviderError, "falha ao obter preço do gas", err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := c.signer(ctx, call.From, tx)
	if err != nil {
		return PendingTx{}, classifyWalletError(err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return PendingTx{}, classifyWalletError(err)
	}
	return PendingTx{Hash: signed.Hash()}, nil
}

// classifyWalletError separa a recusa do usuário das demais falhas de RPC.
func classifyWalletError(err error) *FlowError {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == walletRejectedCode {
		return WrapFlowError(ErrUserRejected, "transação recusada pelo usuário na carteira", err)
	}
	return WrapFlowError(ErrProviderError, "falha ao submeter transação", err)
}

// AwaitConfirmation bloqueia até a transação ser incluída em um bloco.
// Não impõe timeout próprio: quem chama limita pelo context.
func (c *EthLedgerClient) AwaitConfirmation(ctx context.Context, tx PendingTx) (models.LedgerReceipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, tx.Hash)
		if err == nil {
			return c.buildReceipt(receipt), nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return models.LedgerReceipt{}, fmt.Errorf("falha ao consultar receipt de %s: %w", tx.Hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return models.LedgerReceipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EthLedgerClient) buildReceipt(receipt *types.Receipt) models.LedgerReceipt {
	out := models.LedgerReceipt{
		TxHash:  receipt.TxHash.Hex(),
		GasUsed: receipt.GasUsed,
		Status:  receipt.Status,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	for _, lg := range receipt.Logs {
		if event, ok := c.decodeLog(*lg); ok {
			out.Events = append(out.Events, event)
		}
	}
	return out
}

// decodeLog tenta decodificar um log contra os ABIs conhecidos.
// Logs de outros contratos ou eventos desconhecidos são ignorados.
func (c *EthLedgerClient) decodeLog(lg types.Log) (models.LedgerEvent, bool) {
	var source abi.ABI
	switch lg.Address {
	case c.contracts.NFTAddress:
		source = c.contracts.NFTABI
	case c.contracts.MarketAddress:
		source = c.contracts.MarketABI
	default:
		return models.LedgerEvent{}, false
	}
	if len(lg.Topics) == 0 {
		return models.LedgerEvent{}, false
	}

	event, err := source.EventByID(lg.Topics[0])
	if err != nil {
		return models.LedgerEvent{}, false
	}

	args := map[string]interface{}{}
	if len(lg.Data) > 0 {
		if err := source.UnpackIntoMap(args, event.Name, lg.Data); err != nil {
			return models.LedgerEvent{}, false
		}
	}
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return models.LedgerEvent{}, false
		}
	}

	return models.LedgerEvent{
		Name:        event.Name,
		Args:        args,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
	}, true
}

// QueryEvents busca eventos históricos dentro da janela de lookback.
// Transferências mais antigas que a janela ficam fora — limite de cobertura
// documentado, não um bug.
func (c *EthLedgerClient) QueryEvents(ctx context.Context, filter EventFilter) ([]models.LedgerEvent, error) {
	contractABI, address, err := c.contracts.abiFor(filter.Contract)
	if err != nil {
		return nil, err
	}
	event, ok := contractABI.Events[filter.Name]
	if !ok {
		return nil, fmt.Errorf("evento desconhecido: %s", filter.Name)
	}

	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao obter altura da chain: %w", err)
	}
	fromBlock := uint64(0)
	if head > c.lookback {
		fromBlock = head - c.lookback
	}

	topics, err := c.buildTopics(event, filter.IndexedArgs)
	if err != nil {
		return nil, err
	}

	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{address},
		Topics:    topics,
	})
	if err != nil {
		return nil, fmt.Errorf("falha ao consultar eventos %s: %w", filter.Name, err)
	}

	events := make([]models.LedgerEvent, 0, len(logs))
	for _, lg := range logs {
		if decoded, ok := c.decodeLog(lg); ok {
			events = append(events, decoded)
		}
	}
	return events, nil
}

// buildTopics monta o filtro de tópicos: posição 0 é a assinatura do evento,
// as seguintes casam com os argumentos indexados pedidos (nil = qualquer).
func (c *EthLedgerClient) buildTopics(event abi.Event, indexedArgs map[string]interface{}) ([][]common.Hash, error) {
	topics := [][]common.Hash{{event.ID}}
	if len(indexedArgs) == 0 {
		return topics, nil
	}

	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		value, ok := indexedArgs[input.Name]
		if !ok {
			topics = append(topics, nil)
			continue
		}
		packed, err := abi.MakeTopics([]interface{}{value})
		if err != nil {
			return nil, fmt.Errorf("falha ao montar filtro para %s: %w", input.Name, err)
		}
		topics = append(topics, packed[0])
	}
	return topics, nil
}

func (c *EthLedgerClient) readState(ctx context.Context, ref ContractRef, method string, args ...interface{}) ([]interface{}, error) {
	contractABI, to, err := c.contracts.abiFor(ref)
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("falha ao codificar leitura %s: %w", method, err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("falha ao ler estado via %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("falha ao decodificar retorno de %s: %w", method, err)
	}
	return values, nil
}

func (c *EthLedgerClient) GetListing(ctx context.Context, tokenID *big.Int) (ListingState, error) {
	values, err := c.readState(ctx, ContractMarket, "listings", tokenID)
	if err != nil {
		return ListingState{}, err
	}
	if len(values) != 4 {
		return ListingState{}, fmt.Errorf("retorno inesperado de listings: %d valores", len(values))
	}
	return ListingState{
		TokenID:       new(big.Int).Set(tokenID),
		Seller:        values[0].(common.Address),
		Price:         values[1].(*big.Int),
		Active:        values[2].(bool),
		ListedAtBlock: values[3].(*big.Int).Uint64(),
	}, nil
}

func (c *EthLedgerClient) ActiveListings(ctx context.Context) ([]ListingState, error) {
	values, err := c.readState(ctx, ContractMarket, "getActiveListings")
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("retorno inesperado de getActiveListings: %d valores", len(values))
	}
	tokenIDs := values[0].([]*big.Int)
	sellers := values[1].([]common.Address)
	prices := values[2].([]*big.Int)
	blocks := values[3].([]*big.Int)

	listings := make([]ListingState, 0, len(tokenIDs))
	for i := range tokenIDs {
		listings = append(listings, ListingState{
			TokenID:       tokenIDs[i],
			Seller:        sellers[i],
			Price:         prices[i],
			Active:        true,
			ListedAtBlock: blocks[i].Uint64(),
		})
	}
	return listings, nil
}

func (c *EthLedgerClient) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	values, err := c.readState(ctx, ContractNFT, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

func (c *EthLedgerClient) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	values, err := c.readState(ctx, ContractNFT, "getApproved", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

func (c *EthLedgerClient) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	values, err := c.readState(ctx, ContractNFT, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return values[0].(string), nil
}

func (c *EthLedgerClient) GetCarDetails(ctx context.Context, tokenID *big.Int) (models.CarDetails, error) {
	values, err := c.readState(ctx, ContractNFT, "getCarDetails", tokenID)
	if err != nil {
		return models.CarDetails{}, err
	}
	if len(values) != 4 {
		return models.CarDetails{}, fmt.Errorf("retorno inesperado de getCarDetails: %d valores", len(values))
	}
	return models.CarDetails{
		VIN:   values[0].(string),
		Make:  values[1].(string),
		Model: values[2].(string),
		Year:  values[3].(uint16),
	}, nil
}

func (c *EthLedgerClient) VINExists(ctx context.Context, vin string) (bool, error) {
	values, err := c.readState(ctx, ContractNFT, "vinExists", vin)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}
