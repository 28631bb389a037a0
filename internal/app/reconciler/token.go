// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pledger/reconciler/configuration"
)

// AnyToken is the wildcard token a trace may accept.
var AnyToken = configuration.Token{
	Symbol:         "ANY_TOKEN",
	Name:           "ANY_TOKEN",
	Address:        "0xFFfFfFffFFfffFFfFFfFFFFFffFFFffffFfFFFfF",
	ForeignAddress: "0xFFfFfFffFFfffFFfFFfFFFFFffFFFffffFfFFFfF",
	Decimals:       18,
}

// TokenRegistry resolves whitelisted tokens by home or foreign address and
// carries the per-token negligibility cutoff, 10^(18-decimals).
type TokenRegistry struct {
	byAddress        map[string]configuration.Token
	byForeignAddress map[string]configuration.Token
	cutoffs          map[string]decimal.Decimal
}

func NewTokenRegistry(tokens []configuration.Token) *TokenRegistry {
	r := &TokenRegistry{
		byAddress:        make(map[string]configuration.Token),
		byForeignAddress: make(map[string]configuration.Token),
		cutoffs:          make(map[string]decimal.Decimal),
	}
	for _, t := range append(tokens, AnyToken) {
		r.byAddress[strings.ToLower(t.Address)] = t
		r.byForeignAddress[strings.ToLower(t.ForeignAddress)] = t
		r.cutoffs[t.Symbol] = decimal.New(1, int32(18-t.Decimals))
	}
	return r
}

func (r *TokenRegistry) ByAddress(address string) (configuration.Token, bool) {
	t, ok := r.byAddress[strings.ToLower(address)]
	return t, ok
}

func (r *TokenRegistry) ByForeignAddress(address string) (configuration.Token, bool) {
	t, ok := r.byForeignAddress[strings.ToLower(address)]
	return t, ok
}

// Cutoff returns the amount below which a remaining balance is negligible.
func (r *TokenRegistry) Cutoff(symbol string) (decimal.Decimal, bool) {
	c, ok := r.cutoffs[symbol]
	return c, ok
}

func (r *TokenRegistry) SymbolByAddress(address string) string {
	if t, ok := r.ByAddress(address); ok {
		return t.Symbol
	}
	return "ETH"
}
