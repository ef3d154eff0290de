package domain

import "math"

// FeePolicy describes how a gross charge is split between the platform, the
// payment gateway and the provider.
type FeePolicy struct {
	CommissionRate      float64
	ProcessingRate      float64
	ProcessingFlatCents int64
}

// DefaultFeePolicy matches the platform's standard pricing: 15% commission
// plus the gateway's 2.9% + 30¢ processing cut.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		CommissionRate:      0.15,
		ProcessingRate:      0.029,
		ProcessingFlatCents: 30,
	}
}

// FeeBreakdown is the exact integer-cent split of a gross amount.
// GrossCents == PlatformFeeCents + ProcessingFeeCents + ProviderNetCents.
type FeeBreakdown struct {
	GrossCents         int64
	PlatformFeeCents   int64
	ProcessingFeeCents int64
	ProviderNetCents   int64
}

// ComputeFees splits grossCents according to the policy. Each fee component is
// rounded half-up exactly once; the provider net absorbs the remainder so the
// three components always sum back to gross.
func (p FeePolicy) ComputeFees(grossCents int64) (FeeBreakdown, error) {
	if grossCents <= 0 {
		return FeeBreakdown{}, NewInvalidAmountError(grossCents)
	}

	platform := roundHalfUp(float64(grossCents) * p.CommissionRate)
	processing := roundHalfUp(float64(grossCents)*p.ProcessingRate) + p.ProcessingFlatCents
	net := grossCents - platform - processing

	if net <= 0 {
		return FeeBreakdown{}, NewInvalidAmountError(grossCents)
	}

	return FeeBreakdown{
		GrossCents:         grossCents,
		PlatformFeeCents:   platform,
		ProcessingFeeCents: processing,
		ProviderNetCents:   net,
	}, nil
}

// PlatformShare is the portion of gross retained by the platform, covering
// both commission and the gateway's processing cut.
func (f FeeBreakdown) PlatformShare() int64 {
	return f.PlatformFeeCents + f.ProcessingFeeCents
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
