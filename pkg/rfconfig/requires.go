package rfconfig

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Requires is instantiated by the operator consuming the RF configuration,
// typically the UE side.
type Requires struct {
	bag      Databag
	isLeader func() bool
	log      *zap.Logger
}

// NewRequires wires the requirer side over the given databag.
func NewRequires(bag Databag, isLeader func() bool, log *zap.Logger) *Requires {
	return &Requires{bag: bag, isLeader: isLeader, log: log.Named("rfconfig")}
}

// Created reports whether the relation exists.
func (r *Requires) Created(ctx context.Context) (bool, error) {
	return r.bag.Created(ctx)
}

// ProviderVersion reads the raw interface version from the provider bag.
// ok is false when the relation, the provider bag, or the version field is
// absent or unparseable. Comparing the version against ours is the
// caller's job.
func (r *Requires) ProviderVersion(ctx context.Context) (version int, ok bool, err error) {
	data, joined, err := r.bag.Remote(ctx)
	if err != nil || !joined {
		return 0, false, err
	}
	raw, present := data["version"]
	if !present {
		return 0, false, nil
	}
	v, convErr := strconv.Atoi(raw)
	if convErr != nil {
		r.log.Warn("invalid provider interface version", zap.String("version", raw))
		return 0, false, nil
	}
	return v, true, nil
}

// ProviderData materializes the provider bag into a typed record,
// all-or-nothing. It returns (nil, nil) when the relation is absent, the
// provider has not joined, or any required field is missing or fails to
// parse or validate: not-yet-populated relations are an expected state,
// never an error. Only backend faults surface as errors.
func (r *Requires) ProviderData(ctx context.Context) (*ProviderData, error) {
	bag, joined, err := r.bag.Remote(ctx)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, nil
	}

	var data ProviderData
	required := map[string]*int{
		"version":           &data.Version,
		"sst":               &data.SST,
		"band":              &data.Band,
		"dl_freq":           &data.DLFreq,
		"carrier_bandwidth": &data.CarrierBandwidth,
		"numerology":        &data.Numerology,
		"start_subcarrier":  &data.StartSubcarrier,
	}
	for field, dst := range required {
		raw, present := bag[field]
		if !present {
			r.log.Debug("RF configuration incomplete", zap.String("missing", field))
			return nil, nil
		}
		v, convErr := strconv.Atoi(raw)
		if convErr != nil {
			r.log.Warn("invalid RF configuration field",
				zap.String("field", field), zap.String("value", raw))
			return nil, nil
		}
		*dst = v
	}
	if raw, present := bag["rfsim_address"]; present {
		data.RFSIMAddress = &raw
	}
	if raw, present := bag["sd"]; present {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil {
			r.log.Warn("invalid RF configuration field",
				zap.String("field", "sd"), zap.String("value", raw))
			return nil, nil
		}
		data.SD = &v
	}

	if err := validateAgainst(providerSchema, data); err != nil {
		r.log.Warn("RF configuration failed schema validation", zap.Error(err))
		return nil, nil
	}
	return &data, nil
}

// PublishVersion writes the requirer's interface version into its bag so
// the provider can detect version mismatches.
func (r *Requires) PublishVersion(ctx context.Context) error {
	if !r.isLeader() {
		return fmt.Errorf("%w: cannot publish %s data", ErrNotLeader, DefaultRelationName)
	}
	if err := validateAgainst(requirerSchema, RequirerData{Version: Version}); err != nil {
		return err
	}
	return r.bag.PublishLocal(ctx, map[string]string{
		"version": strconv.Itoa(Version),
	})
}
