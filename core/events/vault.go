package events

const (
	TypeVaultFractionalized        = "vault.fractionalized"
	TypeVaultReclaimInitiated      = "vault.reclaim.initiated"
	TypeVaultReclaimFinalized      = "vault.reclaim.finalized"
	TypeVaultReclaimCancelled      = "vault.reclaim.cancelled"
	TypeVaultReclaimExpired        = "vault.reclaim.expired"
	TypeVaultCompensationDisbursed = "vault.compensation.disbursed"
	TypeVaultClosed                = "vault.closed"
)

type VaultFractionalized struct {
	Vault                [32]byte
	Creator              [32]byte
	Asset                [32]byte
	FractionMint         [32]byte
	TotalSupply          uint64
	MinLPAgeSeconds      int64
	MinReclaimPercentage uint8
	MinLiquidityPercent  uint8
	MinVolumePercent30d  uint8
	Timestamp            int64
}

func (VaultFractionalized) EventType() string { return TypeVaultFractionalized }

func (e VaultFractionalized) Record() *Record {
	return &Record{
		Type: TypeVaultFractionalized,
		Attributes: map[string]string{
			"vault":                hexID(e.Vault),
			"creator":              hexID(e.Creator),
			"asset":                hexID(e.Asset),
			"fractionMint":         hexID(e.FractionMint),
			"totalSupply":          uintToString(e.TotalSupply),
			"minLpAgeSeconds":      intToString(e.MinLPAgeSeconds),
			"minReclaimPercentage": uintToString(uint64(e.MinReclaimPercentage)),
			"minLiquidityPercent":  uintToString(uint64(e.MinLiquidityPercent)),
			"minVolumePercent30d":  uintToString(uint64(e.MinVolumePercent30d)),
			"timestamp":            intToString(e.Timestamp),
		},
	}
}

// VaultReclaimInitiated is emitted when fractions enter escrow. MinorityTokens
// is the supply outside the escrow that compensation is owed to.
type VaultReclaimInitiated struct {
	Vault             [32]byte
	Initiator         [32]byte
	TokensLocked      uint64
	MinorityTokens    uint64
	TWAPPrice         uint64
	TotalCompensation uint64
	EscrowEndsAt      int64
	Timestamp         int64
}

func (VaultReclaimInitiated) EventType() string { return TypeVaultReclaimInitiated }

func (e VaultReclaimInitiated) Record() *Record {
	return &Record{
		Type: TypeVaultReclaimInitiated,
		Attributes: map[string]string{
			"vault":             hexID(e.Vault),
			"initiator":         hexID(e.Initiator),
			"tokensLocked":      uintToString(e.TokensLocked),
			"minorityTokens":    uintToString(e.MinorityTokens),
			"twapPrice":         uintToString(e.TWAPPrice),
			"totalCompensation": uintToString(e.TotalCompensation),
			"escrowEndsAt":      intToString(e.EscrowEndsAt),
			"timestamp":         intToString(e.Timestamp),
		},
	}
}

type VaultReclaimFinalized struct {
	Vault             [32]byte
	Reclaimer         [32]byte
	Pool              [32]byte
	TokensBurned      uint64
	TWAPPrice         uint64
	TotalCompensation uint64
	MinorityTokens    uint64
	Timestamp         int64
}

func (VaultReclaimFinalized) EventType() string { return TypeVaultReclaimFinalized }

func (e VaultReclaimFinalized) Record() *Record {
	return &Record{
		Type: TypeVaultReclaimFinalized,
		Attributes: map[string]string{
			"vault":             hexID(e.Vault),
			"reclaimer":         hexID(e.Reclaimer),
			"pool":              hexID(e.Pool),
			"tokensBurned":      uintToString(e.TokensBurned),
			"twapPrice":         uintToString(e.TWAPPrice),
			"totalCompensation": uintToString(e.TotalCompensation),
			"minorityTokens":    uintToString(e.MinorityTokens),
			"timestamp":         intToString(e.Timestamp),
		},
	}
}

// VaultReclaimReleased covers both voluntary cancellation and expiry; the
// event type distinguishes them.
type VaultReclaimReleased struct {
	Expired              bool
	Vault                [32]byte
	Initiator            [32]byte
	TokensReturned       uint64
	CompensationReturned uint64
	Timestamp            int64
}

func (e VaultReclaimReleased) EventType() string {
	if e.Expired {
		return TypeVaultReclaimExpired
	}
	return TypeVaultReclaimCancelled
}

func (e VaultReclaimReleased) Record() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"vault":                hexID(e.Vault),
			"initiator":            hexID(e.Initiator),
			"tokensReturned":       uintToString(e.TokensReturned),
			"compensationReturned": uintToString(e.CompensationReturned),
			"timestamp":            intToString(e.Timestamp),
		},
	}
}

type VaultCompensationDisbursed struct {
	Vault                 [32]byte
	Holder                [32]byte
	TokensBurned          uint64
	Paid                  uint64
	RemainingCompensation uint64
}

func (VaultCompensationDisbursed) EventType() string { return TypeVaultCompensationDisbursed }

func (e VaultCompensationDisbursed) Record() *Record {
	return &Record{
		Type: TypeVaultCompensationDisbursed,
		Attributes: map[string]string{
			"vault":                 hexID(e.Vault),
			"holder":                hexID(e.Holder),
			"tokensBurned":          uintToString(e.TokensBurned),
			"paid":                  uintToString(e.Paid),
			"remainingCompensation": uintToString(e.RemainingCompensation),
		},
	}
}

type VaultClosed struct {
	Vault     [32]byte
	Timestamp int64
}

func (VaultClosed) EventType() string { return TypeVaultClosed }

func (e VaultClosed) Record() *Record {
	return &Record{
		Type: TypeVaultClosed,
		Attributes: map[string]string{
			"vault":     hexID(e.Vault),
			"timestamp": intToString(e.Timestamp),
		},
	}
}
