package blockchain

// HandleRegistryABI is the ABI of the handle registry contract the minter writes to.
const HandleRegistryABI = `[{"inputs":[{"internalType":"string","name":"handle","type":"string"}],"name":"mintCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"string","name":"handle","type":"string"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"owner","type":"address"},{"indexed":false,"internalType":"string","name":"handle","type":"string"}],"name":"HandleMinted","type":"event"}]`

const (
	methodMintCount   = "mintCount"
	methodTotalSupply = "totalSupply"
)

// Transfer is a native coin transfer seen in a block.
type Transfer struct {
	From        string
	To          string
	Amount      int64
	TxHash      string
	BlockNumber uint64
}
