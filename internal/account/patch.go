package account

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Name         *string `json:"name,omitempty"`
	Type         *Side   `json:"type,omitempty"`
	AmountIn     *string `json:"amount_in,omitempty"`
	Unit         *Unit   `json:"unit,omitempty"`
	TokenAddress *string `json:"token_address,omitempty"`
	Slippage     *string `json:"slippage,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
	Cycle        *int    `json:"cycle,omitempty"`
	CurrentCycle *int    `json:"current_cycle,omitempty"`
	Status       *Status `json:"status,omitempty"`
	SortOrder    *int    `json:"sort_order,omitempty"`
	WaitFrom     *int    `json:"wait_from,omitempty"`
	WaitTo       *int    `json:"wait_to,omitempty"`
	BNBBalance   *string `json:"bnb_balance,omitempty"`
	TokenBalance *string `json:"token_balance,omitempty"`
}

func (p Patch) Apply(a *Account) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.AmountIn != nil {
		a.AmountIn = *p.AmountIn
	}
	if p.Unit != nil {
		a.Unit = *p.Unit
	}
	if p.TokenAddress != nil {
		a.TokenAddress = *p.TokenAddress
	}
	if p.Slippage != nil {
		a.Slippage = *p.Slippage
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	if p.Cycle != nil {
		a.Cycle = *p.Cycle
	}
	if p.CurrentCycle != nil {
		a.CurrentCycle = *p.CurrentCycle
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.SortOrder != nil {
		a.SortOrder = *p.SortOrder
	}
	if p.WaitFrom != nil {
		a.WaitFrom = *p.WaitFrom
	}
	if p.WaitTo != nil {
		a.WaitTo = *p.WaitTo
	}
	if p.BNBBalance != nil {
		a.BNBBalance = *p.BNBBalance
	}
	if p.TokenBalance != nil {
		a.TokenBalance = *p.TokenBalance
	}
}

func ptr[T any](v T) *T { return &v }

func StatusPatch(s Status) Patch { return Patch{Status: ptr(s)} }

func CurrentCyclePatch(n int) Patch { return Patch{CurrentCycle: ptr(n)} }

// SentinelPatch marks an account failed with cycle=1,currentCycle=1 so it is
// never scheduled again until reset.
func SentinelPatch() Patch {
	return Patch{Status: ptr(Failed), Cycle: ptr(1), CurrentCycle: ptr(1)}
}

func BalancePatch(bnb, tokens string) Patch {
	return Patch{BNBBalance: ptr(bnb), TokenBalance: ptr(tokens)}
}

func ActivePatch(active bool) Patch { return Patch{IsActive: ptr(active)} }
