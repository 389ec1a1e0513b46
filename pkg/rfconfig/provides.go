package rfconfig

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Provides is instantiated by the operator providing the RF configuration,
// typically the DU side.
type Provides struct {
	bag      Databag
	isLeader func() bool
	log      *zap.Logger
}

// NewProvides wires the provider side over the given databag. isLeader is
// consulted on every publish; only the leader may write application data.
func NewProvides(bag Databag, isLeader func() bool, log *zap.Logger) *Provides {
	return &Provides{bag: bag, isLeader: isLeader, log: log.Named("rfconfig")}
}

// Publish validates data and writes it to the provider bag. The interface
// version is stamped by the library and cannot be overridden. Optional
// fields that are absent are omitted from the bag entirely.
func (p *Provides) Publish(ctx context.Context, data ProviderData) error {
	if !p.isLeader() {
		return fmt.Errorf("%w: cannot publish %s data", ErrNotLeader, DefaultRelationName)
	}
	created, err := p.bag.Created(ctx)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrRelationNotCreated, DefaultRelationName)
	}
	data.Version = Version
	if err := validateAgainst(providerSchema, data); err != nil {
		return err
	}
	bag := map[string]string{
		"version":           strconv.Itoa(data.Version),
		"sst":               strconv.Itoa(data.SST),
		"band":              strconv.Itoa(data.Band),
		"dl_freq":           strconv.Itoa(data.DLFreq),
		"carrier_bandwidth": strconv.Itoa(data.CarrierBandwidth),
		"numerology":        strconv.Itoa(data.Numerology),
		"start_subcarrier":  strconv.Itoa(data.StartSubcarrier),
	}
	if data.RFSIMAddress != nil {
		bag["rfsim_address"] = *data.RFSIMAddress
	}
	if data.SD != nil {
		bag["sd"] = strconv.Itoa(*data.SD)
	}
	if err := p.bag.PublishLocal(ctx, bag); err != nil {
		return err
	}
	p.log.Info("published RF configuration",
		zap.Int("sst", data.SST),
		zap.Int("band", data.Band),
		zap.Int("dl_freq", data.DLFreq))
	return nil
}
