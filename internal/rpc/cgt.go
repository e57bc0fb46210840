package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/sdk"
	"go.uber.org/zap"
)

type addressParams struct {
	Address string `json:"address"`
}

type buildParams struct {
	From  string  `json:"from"`
	Nonce *uint64 `json:"nonce,omitempty"`
	Fee   uint64  `json:"fee,omitempty"`
}

type transferParams struct {
	buildParams
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type sendParams struct {
	TxHex string `json:"tx_hex"`
	Tx    string `json:"tx"`
}

type txParams struct {
	TxHash string `json:"tx_hash"`
	Hash   string `json:"hash"`
}

type historyParams struct {
	Address string `json:"address"`
	Limit   int    `json:"limit,omitempty"`
}

type blockParams struct {
	Height *uint64 `json:"height"`
}

func (s *Server) registerCGT() {
	s.register("cgt_getChainInfo", s.chainInfo)
	s.register("cgt_getBlockByHeight", s.blockByHeight)
	s.register("cgt_getBalance", s.balance)
	s.register("cgt_getNonce", s.nonce)
	s.register("cgt_getMetadata", s.metadata, "cgt_getCgtMetadata")
	s.register("cgt_getTotalSupply", s.totalSupply)
	s.register("cgt_isArchon", s.isArchon)
	s.register("cgt_getNftsByOwner", s.nftsByOwner)
	s.register("cgt_buildTransferTx", s.buildTransfer)
	s.register("cgt_sendRawTransaction", s.sendRaw)
	s.register("cgt_getTransaction", s.transaction)
	s.register("cgt_getTransactionHistory", s.history)
	s.registerDev("cgt_devFaucet", s.devFaucet)
}

func (s *Server) chainInfo(context.Context, json.RawMessage) (any, error) {
	info := s.node.ChainInfo()
	return sdk.ChainInfo{Height: info.Height, BlockHash: info.BlockHash}, nil
}

func (s *Server) blockByHeight(_ context.Context, raw json.RawMessage) (any, error) {
	var p blockParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Height == nil {
		return s.node.LatestBlock(), nil
	}
	b, err := s.node.BlockByHeight(*p.Height)
	if errors.Is(err, chain.ErrBlockNotFound) {
		return nil, nil
	}
	return b, err
}

func (s *Server) addressParam(raw json.RawMessage) (chain.Address, error) {
	var p addressParams
	if err := decodeParams(raw, &p); err != nil {
		return chain.Address{}, err
	}
	return parseAddress("address", p.Address)
}

func (s *Server) balance(_ context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	return map[string]string{"balance": amount(s.node.Balance(a))}, nil
}

func (s *Server) nonce(_ context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"nonce": s.node.Nonce(a)}, nil
}

func (s *Server) metadata(context.Context, json.RawMessage) (any, error) {
	return sdk.Metadata{
		Name:        chain.CGTName,
		Symbol:      chain.CGTSymbol,
		Decimals:    chain.CGTDecimals,
		MaxSupply:   chain.CGTMaxSupply.String(),
		TotalSupply: amount(s.node.TotalSupply()),
	}, nil
}

func (s *Server) totalSupply(context.Context, json.RawMessage) (any, error) {
	return map[string]string{"total_supply": amount(s.node.TotalSupply())}, nil
}

func (s *Server) isArchon(_ context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"is_archon": s.node.IsArchon(a)}, nil
}

func (s *Server) nftsByOwner(_ context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	nfts := s.node.NFTsByOwner(a)
	out := make([]sdk.NFT, 0, len(nfts))
	for _, n := range nfts {
		out = append(out, nftView(n))
	}
	return map[string][]sdk.NFT{"nfts": out}, nil
}

// build encodes an unsigned transaction from p.From. A missing nonce is
// filled with the sender's next nonce.
func (s *Server) build(p buildParams, module, call string, params any) (any, error) {
	from, err := parseAddress("from", p.From)
	if err != nil {
		return nil, err
	}
	nonce := s.node.Nonce(from)
	if p.Nonce != nil {
		nonce = *p.Nonce
	}
	tx, err := chain.NewTransaction(from, nonce, module, call, params, p.Fee)
	if err != nil {
		return nil, err
	}
	txHex, err := tx.EncodeHex()
	if err != nil {
		return nil, err
	}
	return sdk.UnsignedTx{TxHex: txHex}, nil
}

func (s *Server) buildTransfer(_ context.Context, raw json.RawMessage) (any, error) {
	var p transferParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, err
	}
	amt, err := chain.ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if amt.Sign() == 0 {
		return nil, invalidParams("amount must be positive")
	}
	return s.build(p.buildParams, chain.ModuleBank, chain.CallTransfer, chain.TransferParams{To: to, Amount: amt.String()})
}

func (s *Server) sendRaw(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sendParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	txHex := p.TxHex
	if txHex == "" {
		txHex = p.Tx
	}
	if txHex == "" {
		return nil, invalidParams("tx_hex is required")
	}
	hash, err := s.node.SubmitRaw(ctx, txHex)
	if err != nil {
		return nil, err
	}
	return sdk.SendResult{Accepted: true, TxHash: hash}, nil
}

// transaction returns null for unknown or malformed hashes.
func (s *Server) transaction(_ context.Context, raw json.RawMessage) (any, error) {
	var p txParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	hash := p.TxHash
	if hash == "" {
		hash = p.Hash
	}
	if hash == "" {
		return nil, invalidParams("tx_hash is required")
	}
	rec, err := s.node.TransactionByHash(hash)
	if errors.Is(err, chain.ErrTxNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := txView(rec)
	return &v, nil
}

func (s *Server) history(_ context.Context, raw json.RawMessage) (any, error) {
	var p historyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	a, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	if p.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	recs := s.node.TransactionsForAddress(a, p.Limit)
	out := make([]sdk.Transaction, 0, len(recs))
	for _, r := range recs {
		out = append(out, txView(r))
	}
	return map[string][]sdk.Transaction{"transactions": out}, nil
}

func (s *Server) devFaucet(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := s.addressParam(raw)
	if err != nil {
		return nil, err
	}
	bal, err := s.node.DevFaucet(ctx, a)
	if err != nil {
		return nil, err
	}
	s.logger.Info("dev faucet", zap.String("address", a.String()), zap.String("balance", bal.String()))
	return sdk.FaucetResult{OK: true, NewBalance: bal.String()}, nil
}
