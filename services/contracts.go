package services

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABIs dos contratos CarNFT e CarMarketplace, parseados uma única vez na
// inicialização.
const carNFTABI = `[
	{"type":"function","name":"mintCar","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenURI","type":"string"},{"name":"vin","type":"string"},{"name":"make","type":"string"},{"name":"model","type":"string"},{"name":"year","type":"uint16"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getApproved","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"operator","type":"address"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"owner","type":"address"}]},
	{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"uri","type":"string"}]},
	{"type":"function","name":"vinExists","stateMutability":"view","inputs":[{"name":"vin","type":"string"}],"outputs":[{"name":"exists","type":"bool"}]},
	{"type":"function","name":"getCarDetails","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"vin","type":"string"},{"name":"make","type":"string"},{"name":"model","type":"string"},{"name":"year","type":"uint16"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]},
	{"type":"event","name":"CarMinted","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true},{"name":"vin","type":"string","indexed":false}]}
]`

const carMarketplaceABI = `[
	{"type":"function","name":"listCar","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"buyCar","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"removeListing","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"updatePrice","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"newPrice","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"listings","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"seller","type":"address"},{"name":"price","type":"uint256"},{"name":"active","type":"bool"},{"name":"listedAtBlock","type":"uint256"}]},
	{"type":"function","name":"getActiveListings","stateMutability":"view","inputs":[],"outputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"sellers","type":"address[]"},{"name":"prices","type":"uint256[]"},{"name":"blocks","type":"uint256[]"}]},
	{"type":"event","name":"CarListed","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true},{"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"CarSold","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"ListingRemoved","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true}]},
	{"type":"event","name":"PriceUpdated","inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"newPrice","type":"uint256","indexed":false}]}
]`

// ContractSet agrupa os descriptors normalizados dos dois contratos.
type ContractSet struct {
	NFTAddress    common.Address
	MarketAddress common.Address
	NFTABI        abi.ABI
	MarketABI     abi.ABI
}

// NewContractSet parseia os ABIs e resolve os endereços. Chamado uma única
// vez na inicialização; depois disso nenhuma chamada reinterpreta ABI.
func NewContractSet(nftAddress, marketAddress string) (*ContractSet, error) {
	if !common.IsHexAddress(nftAddress) {
		return nil, fmt.Errorf("endereço do contrato CarNFT inválido: %q", nftAddress)
	}
	if !common.IsHexAddress(marketAddress) {
		return nil, fmt.Errorf("endereço do contrato CarMarketplace inválido: %q", marketAddress)
	}

	nftABI, err := abi.JSON(strings.NewReader(carNFTABI))
	if err != nil {
		return nil, fmt.Errorf("falha ao parsear ABI do CarNFT: %w", err)
	}
	marketABI, err := abi.JSON(strings.NewReader(carMarketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("falha ao parsear ABI do CarMarketplace: %w", err)
	}

	return &ContractSet{
		NFTAddress:    common.HexToAddress(nftAddress),
		MarketAddress: common.HexToAddress(marketAddress),
		NFTABI:        nftABI,
		MarketABI:     marketABI,
	}, nil
}

// resolveCapabilities deriva os recursos opcionais da presença dos métodos
// no ABI.
func (c *ContractSet) resolveCapabilities() Capabilities {
	_, hasVIN := c.NFTABI.Methods["vinExists"]
	_, hasDetails := c.NFTABI.Methods["getCarDetails"]
	_, hasIndex := c.MarketABI.Methods["getActiveListings"]
	return Capabilities{
		HasVINCheck:     hasVIN,
		HasListingIndex: hasIndex,
		HasCarDetails:   hasDetails,
	}
}

// abiFor devolve o ABI e o endereço do contrato referenciado.
func (c *ContractSet) abiFor(ref ContractRef) (abi.ABI, common.Address, error) {
	switch ref {
	case ContractNFT:
		return c.NFTABI, c.NFTAddress, nil
	case ContractMarket:
		return c.MarketABI, c.MarketAddress, nil
	default:
		return abi.ABI{}, common.Address{}, fmt.Errorf("contrato desconhecido: %q", ref)
	}
}
