package services

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// FormatEth converte wei para uma string decimal em unidades humanas
// (ETH/MATIC). Usado SOMENTE para montar mensagens e projeções de exibição;
// nenhum valor formatado volta para um cálculo — todo o orçamento e
// submissão trabalham com inteiros em wei.
func FormatEth(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	value := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return value.Text('f', -1)
}
