package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config reúne toda a configuração do backend, resolvida uma única vez na
// inicialização (arquivo config.yaml opcional + variáveis DEAUTO_*).
type Config struct {
	Port           string
	RPCURL         string
	ChainID        uint64
	NFTAddress     string
	MarketAddress  string
	DatabaseURL    string
	SignerKey      string // Chave privada hex do signatário (só para dev)
	LookbackBlocks uint64
	PollInterval   time.Duration
}

// Load lê e valida a configuração.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("DEAUTO")
	v.AutomaticEnv()

	v.SetDefault("port", ":8080")
	v.SetDefault("chain_id", 11155111) // Sepolia por padrão
	v.SetDefault("lookback_blocks", 10000)
	v.SetDefault("poll_interval_seconds", 15)

	if err := v.ReadInConfig(); err != nil {
		// Arquivo é opcional; qualquer outro erro de leitura é fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("falha ao ler arquivo de configuração: %w", err)
		}
	}

	cfg := Config{
		Port:           v.GetString("port"),
		RPCURL:         v.GetString("rpc_url"),
		ChainID:        v.GetUint64("chain_id"),
		NFTAddress:     v.GetString("nft_address"),
		MarketAddress:  v.GetString("market_address"),
		DatabaseURL:    v.GetString("database_url"),
		SignerKey:      v.GetString("signer_key"),
		LookbackBlocks: v.GetUint64("lookback_blocks"),
		PollInterval:   time.Duration(v.GetInt64("poll_interval_seconds")) * time.Second,
	}

	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("configuração rpc_url (DEAUTO_RPC_URL) é obrigatória")
	}
	if cfg.NFTAddress == "" || cfg.MarketAddress == "" {
		return Config{}, fmt.Errorf("endereços dos contratos (DEAUTO_NFT_ADDRESS, DEAUTO_MARKET_ADDRESS) são obrigatórios")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("configuração database_url (DEAUTO_DATABASE_URL) é obrigatória")
	}
	return cfg, nil
}
