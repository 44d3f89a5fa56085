// Package registry holds the static per-chain descriptors the bridge operates on.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/config"
)

// ChainDescriptor is immutable after the registry is built.
type ChainDescriptor struct {
	Name             string
	DomainID         uint32
	ChainID          string
	Blockchain       string
	TokenAddress     common.Address
	MessengerAddress common.Address
	ReceiverAddress  common.Address
	ProtocolVersion  uint8
	RPCEndpoint      string
	RPCTimeout       time.Duration
}

type Registry struct {
	byName   map[string]ChainDescriptor
	byDomain map[uint32]string
}

func New(chains map[string]*config.ChainConfig) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]ChainDescriptor, len(chains)),
		byDomain: make(map[uint32]string, len(chains)),
	}
	for name, cfg := range chains {
		if _, ok := r.byDomain[cfg.DomainID]; ok {
			return nil, fmt.Errorf("duplicate domain id %d for chain %s", cfg.DomainID, name)
		}
		desc := ChainDescriptor{
			Name:             name,
			DomainID:         cfg.DomainID,
			ChainID:          cfg.ChainID,
			Blockchain:       cfg.Blockchain,
			TokenAddress:     cfg.TokenAddress,
			MessengerAddress: cfg.MessengerAddress,
			ReceiverAddress:  cfg.ReceiverAddress,
			ProtocolVersion:  cfg.ProtocolVersion,
		}
		if cfg.RPC != nil {
			desc.RPCEndpoint = cfg.RPC.Host
			desc.RPCTimeout = cfg.RPC.Timeout
		}
		r.byName[name] = desc
		r.byDomain[cfg.DomainID] = name
	}
	return r, nil
}

// Get returns a copy of the descriptor so callers can't mutate the registry.
func (r *Registry) Get(name string) (*ChainDescriptor, error) {
	desc, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown chain %q: %w", name, apperr.ErrValidation)
	}
	return &desc, nil
}

func (r *Registry) ByDomain(domainID uint32) (*ChainDescriptor, error) {
	name, ok := r.byDomain[domainID]
	if !ok {
		return nil, fmt.Errorf("unknown domain id %d: %w", domainID, apperr.ErrValidation)
	}
	return r.Get(name)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) All() []*ChainDescriptor {
	names := r.Names()
	res := make([]*ChainDescriptor, 0, len(names))
	for _, name := range names {
		desc := r.byName[name]
		res = append(res, &desc)
	}
	return res
}
