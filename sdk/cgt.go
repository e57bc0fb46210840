package sdk

import (
	"context"
	"math/big"

	"github.com/nidhogg/demiurge/internal/chain"
)

// CGTAPI wraps the cgt_* methods.
type CGTAPI struct{ c *Client }

type addressArg struct {
	Address string `json:"address"`
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &Error{Kind: KindSerialization, Message: "parse " + field + " " + s}
	}
	return v, nil
}

func (a *CGTAPI) Metadata(ctx context.Context) (*Metadata, error) {
	var out Metadata
	if err := a.c.Call(ctx, "cgt_getMetadata", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *CGTAPI) TotalSupply(ctx context.Context) (*big.Int, error) {
	var out struct {
		TotalSupply string `json:"total_supply"`
	}
	if err := a.c.Call(ctx, "cgt_getTotalSupply", nil, &out); err != nil {
		return nil, err
	}
	return parseAmount("total_supply", out.TotalSupply)
}

func (a *CGTAPI) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	var out ChainInfo
	if err := a.c.Call(ctx, "cgt_getChainInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the address balance in base units.
func (a *CGTAPI) Balance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	var out struct {
		Balance string `json:"balance"`
	}
	if err := a.c.Call(ctx, "cgt_getBalance", addressArg{addr}, &out); err != nil {
		return nil, err
	}
	return parseAmount("balance", out.Balance)
}

func (a *CGTAPI) Nonce(ctx context.Context, address string) (uint64, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}
	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := a.c.Call(ctx, "cgt_getNonce", addressArg{addr}, &out); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}

func (a *CGTAPI) IsArchon(ctx context.Context, address string) (bool, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return false, err
	}
	var out struct {
		IsArchon bool `json:"is_archon"`
	}
	if err := a.c.Call(ctx, "cgt_isArchon", addressArg{addr}, &out); err != nil {
		return false, err
	}
	return out.IsArchon, nil
}

func (a *CGTAPI) NftsByOwner(ctx context.Context, address string) ([]NFT, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	var out struct {
		NFTs []NFT `json:"nfts"`
	}
	if err := a.c.Call(ctx, "cgt_getNftsByOwner", addressArg{addr}, &out); err != nil {
		return nil, err
	}
	return out.NFTs, nil
}

func (a *CGTAPI) SendRawTransaction(ctx context.Context, txHex string) (*SendResult, error) {
	var out SendResult
	if err := a.c.Call(ctx, "cgt_sendRawTransaction", map[string]string{"tx_hex": txHex}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transaction returns nil when the node does not know the hash.
func (a *CGTAPI) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	var out *Transaction
	if err := a.c.Call(ctx, "cgt_getTransaction", map[string]string{"tx_hash": hash}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History lists the newest transactions touching address. limit <= 0 uses the node default.
func (a *CGTAPI) History(ctx context.Context, address string, limit int) ([]Transaction, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"address": addr}
	if limit > 0 {
		params["limit"] = limit
	}
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := a.c.Call(ctx, "cgt_getTransactionHistory", params, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// Transfer signs a transfer locally with the sender's next nonce and submits it.
func (a *CGTAPI) Transfer(ctx context.Context, from Signer, to string, amount *big.Int, fee uint64) (*SendResult, error) {
	dest, err := chain.ParseAddress(to)
	if err != nil {
		return nil, &Error{Kind: KindInvalidAddress, Message: to, Err: err}
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, &Error{Kind: KindTransaction, Message: "amount must be positive"}
	}
	nonce, err := a.Nonce(ctx, AddressOf(from))
	if err != nil {
		return nil, err
	}
	raw, err := signTx(from, nonce, chain.ModuleBank, chain.CallTransfer, chain.TransferParams{To: dest, Amount: amount.String()}, fee)
	if err != nil {
		return nil, err
	}
	return a.SendRawTransaction(ctx, raw)
}

// DevFaucet mints test CGT on dev-mode nodes.
func (a *CGTAPI) DevFaucet(ctx context.Context, address string) (*FaucetResult, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	var out FaucetResult
	if err := a.c.Call(ctx, "cgt_devFaucet", addressArg{addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
