package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/ferreirogomes/deauto/models"
)

// gasMarginPercent é a folga fixa aplicada sobre a estimativa de gas,
// tanto no gasLimit submetido quanto no cálculo de fundos necessários.
const gasMarginPercent = 120

// TransactionOrchestrator transforma uma intenção do usuário ("comprar este
// carro") em uma transação validada, precificada e confirmada na blockchain.
//
// Toda operação segue o mesmo protocolo de quatro fases:
//
//	Validate -> Budget -> Submit -> Verify
//
// Validate e Budget só fazem leituras: falhas ali são seguras de repetir.
// Submit é o único ponto onde a carteira pode recusar (ErrUserRejected,
// nunca repetido automaticamente). Verify reconsulta o estado depois da
// confirmação e acusa ErrPostConditionFailed quando o efeito observável
// diverge do esperado — a escrita foi aceita, repetir cegamente poderia
// duplicar a operação.
//
// Não há estado mutável compartilhado: todo o progresso de uma operação é
// local à chamada, então operações de sessões diferentes podem correr em
// paralelo. Duas compras concorrentes do mesmo carro disputam na blockchain;
// a perdedora volta como ErrPostConditionFailed ou revert, nunca como crash.
type TransactionOrchestrator struct {
	Ledger LedgerClient
}

// NewTransactionOrchestrator cria o orquestrador sobre um LedgerClient.
func NewTransactionOrchestrator(ledger LedgerClient) *TransactionOrchestrator {
	return &TransactionOrchestrator{Ledger: ledger}
}

// MintRequest são os dados do carro a ser tokenizado.
type MintRequest struct {
	VIN      string `json:"vin"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     uint16 `json:"year"`
	TokenURI string `json:"token_uri"`
}

// MintCar cria um novo carro tokenizado para a carteira da sessão.
func (o *TransactionOrchestrator) MintCar(ctx context.Context, session Session, req MintRequest) (*models.TransactionOutcome, error) {
	// Validate
	info, err := o.validateSession(session)
	if err != nil {
		return nil, err
	}
	if o.Ledger.Capabilities().HasVINCheck {
		exists, err := o.Ledger.VINExists(ctx, req.VIN)
		if err != nil {
			return nil, keepOrWrap(err, ErrProviderError, "falha ao verificar unicidade do VIN")
		}
		if exists {
			return nil, NewFlowError(ErrValidationFailed, fmt.Sprintf("já existe um carro com o VIN %s", req.VIN))
		}
	}

	call := CallDescriptor{
		Contract: ContractNFT,
		Method:   "mintCar",
		Args:     []interface{}{session.Wallet, req.TokenURI, req.VIN, req.Make, req.Model, req.Year},
		From:     session.Wallet,
	}

	// Budget + Submit + Verify
	receipt, err := o.executeWrite(ctx, session, info, call, nil)
	if err != nil {
		return nil, err
	}

	tokenID := deriveTokenID(receipt.Events)
	if tokenID == nil {
		return nil, NewFlowError(ErrPostConditionFailed, "mint confirmado mas nenhum token ID foi emitido nos eventos")
	}

	log.Printf("Carro mintado com sucesso: token %s, tx %s", tokenID.String(), receipt.TxHash)
	return &models.TransactionOutcome{
		TransactionHash: receipt.TxHash,
		Receipt:         receipt,
		TokenID:         tokenID.String(),
	}, nil
}

// ListCar coloca um carro à venda pelo preço dado (em wei).
// Quando o marketplace ainda não está aprovado para transferir o token,
// uma transação de approve é submetida e confirmada antes da listagem.
func (o *TransactionOrchestrator) ListCar(ctx context.Context, session Session, tokenID, price *big.Int) (*models.TransactionOutcome, error) {
	// Validate
	info, err := o.validateSession(session)
	if err != nil {
		return nil, err
	}
	owner, err := o.Ledger.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, keepOrWrap(err, ErrProviderError, "falha ao consultar o proprietário do token")
	}
	if owner != session.Wallet {
		return nil, NewFlowError(ErrValidationFailed, "apenas o proprietário pode listar este carro")
	}
	listing, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, keepOrWrap(err, ErrProviderError, "falha ao consultar a listagem atual")
	}
	if listing.Active {
		return nil, NewFlowError(ErrValidationFailed, "este carro já está listado para venda")
	}

	if err := o.ensureMarketplaceApproval(ctx, session, tokenID); err != nil {
		return nil, err
	}

	call := CallDescriptor{
		Contract: ContractMarket,
		Method:   "listCar",
		Args:     []interface{}{tokenID, price},
		From:     session.Wallet,
	}
	receipt, err := o.executeWrite(ctx, session, info, call, nil)
	if err != nil {
		return nil, err
	}

	// Verify: a listagem precisa estar ativa com o preço submetido.
	after, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, WrapFlowError(ErrPostConditionFailed, "listagem confirmada mas o estado não pôde ser verificado", err)
	}
	if !after.Active || after.Price.Cmp(price) != 0 {
		return nil, NewFlowError(ErrPostConditionFailed, "a listagem não ficou ativa com o preço submetido")
	}

	log.Printf("Carro %s listado por %s wei, tx %s", tokenID.String(), price.String(), receipt.TxHash)
	return &models.TransactionOutcome{TransactionHash: receipt.TxHash, Receipt: receipt, TokenID: tokenID.String()}, nil
}

// BuyCar compra um carro listado. O preço esperado vem da UI e é conferido
// contra o preço atual on-chain antes de qualquer escrita — protege contra
// uma tela desatualizada pagando um preço que já mudou.
func (o *TransactionOrchestrator) BuyCar(ctx context.Context, session Session, tokenID, expectedPrice *big.Int) (*models.TransactionOutcome, error) {
	// Validate, na ordem fixa: listagem ativa, preço conferido, não-vendedor.
	info, err := o.validateSession(session)
	if err != nil {
		return nil, err
	}
	listing, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, keepOrWrap(err, ErrProviderError, "falha ao consultar a listagem")
	}
	if !listing.Active {
		return nil, NewFlowError(ErrValidationFailed, "este carro não está mais à venda")
	}
	if listing.Price.Cmp(expectedPrice) != 0 {
		return nil, NewFlowError(ErrValidationFailed, fmt.Sprintf(
			"o preço mudou: agora é %s %s, recarregue e tente novamente",
			FormatEth(listing.Price), info.Currency))
	}
	if listing.Seller == session.Wallet {
		return nil, NewFlowError(ErrValidationFailed, "você não pode comprar o seu próprio carro")
	}

	call := CallDescriptor{
		Contract: ContractMarket,
		Method:   "buyCar",
		Args:     []interface{}{tokenID},
		From:     session.Wallet,
		Value:    expectedPrice,
	}
	receipt, err := o.executeWrite(ctx, session, info, call, expectedPrice)
	if err != nil {
		return nil, err
	}

	// Verify: o comprador precisa ser o novo dono.
	newOwner, err := o.Ledger.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, WrapFlowError(ErrPostConditionFailed, "compra confirmada mas a propriedade não pôde ser verificada", err)
	}
	if newOwner != session.Wallet {
		return nil, NewFlowError(ErrPostConditionFailed, "a transferência de propriedade não se concretizou")
	}

	log.Printf("Carro %s comprado por %s, tx %s", tokenID.String(), session.Wallet.Hex(), receipt.TxHash)
	return &models.TransactionOutcome{TransactionHash: receipt.TxHash, Receipt: receipt, TokenID: tokenID.String()}, nil
}

// RemoveListing tira um carro de venda.
func (o *TransactionOrchestrator) RemoveListing(ctx context.Context, session Session, tokenID *big.Int) (*models.TransactionOutcome, error) {
	info, err := o.validateSession(session)
	if err != nil {
		return nil, err
	}
	listing, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, keepOrWrap(err, ErrProviderError, "falha ao consultar a listagem")
	}
	if listing.Seller != session.Wallet {
		return nil, NewFlowError(ErrValidationFailed, "apenas o vendedor pode remover esta listagem")
	}

	call := CallDescriptor{
		Contract: ContractMarket,
		Method:   "removeListing",
		Args:     []interface{}{tokenID},
		From:     session.Wallet,
	}
	receipt, err := o.executeWrite(ctx, session, info, call, nil)
	if err != nil {
		return nil, err
	}

	after, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, WrapFlowError(ErrPostConditionFailed, "remoção confirmada mas o estado não pôde ser verificado", err)
	}
	if after.Active {
		return nil, NewFlowError(ErrPostConditionFailed, "a listagem continua ativa após a remoção")
	}

	log.Printf("Listagem do carro %s removida, tx %s", tokenID.String(), receipt.TxHash)
	return &models.TransactionOutcome{TransactionHash: receipt.TxHash, Receipt: receipt, TokenID: tokenID.String()}, nil
}

// UpdatePrice altera o preço de uma listagem ativa do vendedor.
func (o *TransactionOrchestrator) UpdatePrice(ctx context.Context, session Session, tokenID, newPrice *big.Int) (*models.TransactionOutcome, error) {
	info, err := o.validateSession(session)
	if err != nil {
		return nil, err
	}
	listing, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, keepOrWrap(err, ErrProviderError, "falha ao consultar a listagem")
	}
	if listing.Seller != session.Wallet {
		return nil, NewFlowError(ErrValidationFailed, "apenas o vendedor pode alterar o preço")
	}
	if !listing.Active {
		return nil, NewFlowError(ErrValidationFailed, "este carro não está listado para venda")
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return nil, NewFlowError(ErrValidationFailed, "o novo preço precisa ser maior que zero")
	}

	call := CallDescriptor{
		Contract: ContractMarket,
		Method:   "updatePrice",
		Args:     []interface{}{tokenID, newPrice},
		From:     session.Wallet,
	}
	receipt, err := o.executeWrite(ctx, session, info, call, nil)
	if err != nil {
		return nil, err
	}

	after, err := o.Ledger.GetListing(ctx, tokenID)
	if err != nil {
		return nil, WrapFlowError(ErrPostConditionFailed, "alteração confirmada mas o estado não pôde ser verificado", err)
	}
	if !after.Active || after.Price.Cmp(newPrice) != 0 {
		return nil, NewFlowError(ErrPostConditionFailed, "o novo preço não foi refletido na listagem")
	}

	log.Printf("Preço do carro %s atualizado para %s wei, tx %s", tokenID.String(), newPrice.String(), receipt.TxHash)
	return &models.TransactionOutcome{TransactionHash: receipt.TxHash, Receipt: receipt, TokenID: tokenID.String()}, nil
}

// validateSession confere carteira e rede — os dois primeiros checks de toda
// operação de escrita, sempre nesta ordem.
func (o *TransactionOrchestrator) validateSession(session Session) (models.NetworkInfo, error) {
	if !session.HasWallet() {
		return models.NetworkInfo{}, NewFlowError(ErrNoWallet, "conecte a sua carteira primeiro")
	}
	info, ok := models.LookupNetwork(session.ChainID)
	if !ok {
		return models.NetworkInfo{}, NewFlowError(ErrUnsupportedNetwork,
			fmt.Sprintf("rede %d não suportada: troque para Ethereum, Polygon ou Sepolia", session.ChainID))
	}
	return info, nil
}

// executeWrite cobre as fases Budget, Submit e a espera de confirmação,
// comuns a todas as operações. extraValue entra no cálculo de fundos além
// do custo de gas (o preço, nas compras).
//
// A ordem importa: a estimativa vem primeiro, então uma chamada que
// reverteria falha antes de qualquer leitura de saldo e nenhum submit
// acontece.
func (o *TransactionOrchestrator) executeWrite(ctx context.Context, session Session, info models.NetworkInfo, call CallDescriptor, extraValue *big.Int) (models.LedgerReceipt, error) {
	// Budget
	gas, err := o.Ledger.EstimateGas(ctx, call)
	if err != nil {
		return models.LedgerReceipt{}, keepOrWrap(err, ErrEstimationFailed,
			fmt.Sprintf("não foi possível estimar o gas de %s: a transação reverteria", call.Method))
	}
	gasPrice, err := o.Ledger.GetGasPrice(ctx)
	if err != nil {
		return models.LedgerReceipt{}, keepOrWrap(err, ErrProviderError, "falha ao consultar o preço do gas")
	}

	required := paddedGasCost(gas, gasPrice)
	if extraValue != nil {
		required.Add(required, extraValue)
	}

	balance, err := o.Ledger.GetBalance(ctx, session.Wallet)
	if err != nil {
		return models.LedgerReceipt{}, keepOrWrap(err, ErrProviderError, "falha ao consultar o saldo da carteira")
	}
	// Saldo exatamente igual ao necessário passa; um wei a menos falha.
	if balance.Cmp(required) < 0 {
		shortfall := new(big.Int).Sub(required, balance)
		return models.LedgerReceipt{}, NewFlowError(ErrInsufficientFunds, fmt.Sprintf(
			"saldo de %s insuficiente: necessário %s %s, faltam %s %s",
			info.Currency, FormatEth(required), info.Currency, FormatEth(shortfall), info.Currency))
	}

	// Submit: único ponto de recusa do usuário; a recusa não é repetida.
	pending, err := o.Ledger.Submit(ctx, call, padGasLimit(gas))
	if err != nil {
		return models.LedgerReceipt{}, keepOrWrap(err, ErrProviderError, "falha ao submeter a transação")
	}

	// Espera de confirmação, sem timeout próprio: o context do chamador manda.
	receipt, err := o.Ledger.AwaitConfirmation(ctx, pending)
	if err != nil {
		return models.LedgerReceipt{}, keepOrWrap(err, ErrProviderError, "falha ao aguardar a confirmação")
	}
	if receipt.Status == 0 {
		return models.LedgerReceipt{}, NewFlowError(ErrPostConditionFailed,
			fmt.Sprintf("a transação %s foi incluída mas reverteu", receipt.TxHash))
	}
	return receipt, nil
}

// ensureMarketplaceApproval confirma um approve antes da listagem quando o
// marketplace ainda não é o operador aprovado do token.
func (o *TransactionOrchestrator) ensureMarketplaceApproval(ctx context.Context, session Session, tokenID *big.Int) error {
	market := o.Ledger.MarketplaceAddress()
	approved, err := o.Ledger.GetApproved(ctx, tokenID)
	if err != nil {
		return keepOrWrap(err, ErrProviderError, "falha ao consultar a aprovação do marketplace")
	}
	if approved == market {
		return nil
	}

	call := CallDescriptor{
		Contract: ContractNFT,
		Method:   "approve",
		Args:     []interface{}{market, tokenID},
		From:     session.Wallet,
	}
	gas, err := o.Ledger.EstimateGas(ctx, call)
	if err != nil {
		return keepOrWrap(err, ErrEstimationFailed, "não foi possível estimar o gas da aprovação")
	}
	pending, err := o.Ledger.Submit(ctx, call, padGasLimit(gas))
	if err != nil {
		return keepOrWrap(err, ErrProviderError, "falha ao submeter a aprovação")
	}
	receipt, err := o.Ledger.AwaitConfirmation(ctx, pending)
	if err != nil {
		return keepOrWrap(err, ErrProviderError, "falha ao aguardar a aprovação")
	}
	if receipt.Status == 0 {
		return NewFlowError(ErrPostConditionFailed, "a transação de aprovação reverteu")
	}
	log.Printf("Marketplace aprovado para o token %s, tx %s", tokenID.String(), receipt.TxHash)
	return nil
}

// padGasLimit aplica a folga de 20% sobre a estimativa.
func padGasLimit(gas uint64) uint64 {
	return gas * gasMarginPercent / 100
}

// paddedGasCost calcula gas × preço × 1.20 em aritmética inteira.
func paddedGasCost(gas uint64, gasPrice *big.Int) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	cost.Mul(cost, big.NewInt(gasMarginPercent))
	return cost.Div(cost, big.NewInt(100))
}

// deriveTokenID extrai o token ID dos eventos do receipt: primeiro
// CarMinted, senão o Transfer padrão ERC-721.
func deriveTokenID(events []models.LedgerEvent) *big.Int {
	for _, name := range []string{"CarMinted", "Transfer"} {
		for _, event := range events {
			if event.Name != name {
				continue
			}
			if id, ok := event.Args["tokenId"].(*big.Int); ok {
				return id
			}
		}
	}
	return nil
}

// keepOrWrap preserva um FlowError já classificado (ex: ErrUserRejected
// vindo do adapter) e embrulha qualquer outro erro com o kind da fase.
func keepOrWrap(err error, kind ErrorKind, message string) error {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return WrapFlowError(kind, message, err)
}
