package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ferreirogomes/deauto/models"
)

// TestLookupNetwork verifica as redes suportadas e suas moedas nativas.
func TestLookupNetwork(t *testing.T) {
	mainnet, ok := models.LookupNetwork(1)
	assert.True(t, ok)
	assert.Equal(t, "Ethereum Mainnet", mainnet.Name)
	assert.Equal(t, "ETH", mainnet.Currency)

	polygon, ok := models.LookupNetwork(137)
	assert.True(t, ok)
	assert.Equal(t, "MATIC", polygon.Currency)

	sepolia, ok := models.LookupNetwork(11155111)
	assert.True(t, ok)
	assert.Equal(t, "ETH", sepolia.Currency)

	_, ok = models.LookupNetwork(4242)
	assert.False(t, ok)
}
