package state

// flow lists the states in conversation order.
var flow = []State{
	StateRegion,
	StateCity,
	StateDeliveryMethod,
	StatePromoDecision,
	StatePromoCode,
	StateCategory,
	StateProduct,
	StateQuantity,
	StateCurrency,
	StateSummary,
	StateAwaitingPayment,
	StatePaymentVerify,
	StateDelivering,
}

var rank = func() map[State]int {
	m := make(map[State]int, len(flow))
	for i, st := range flow {
		m[st] = i
	}
	return m
}()

// previous maps each state to the one "back" returns to. States absent from
// the map do not accept "back"; the initial state resets instead.
var previous = map[State]State{
	StateCity:           StateRegion,
	StateDeliveryMethod: StateCity,
	StatePromoDecision:  StateDeliveryMethod,
	StatePromoCode:      StatePromoDecision,
	StateCategory:       StatePromoDecision,
	StateProduct:        StateCategory,
	StateQuantity:       StateProduct,
	StateCurrency:       StateQuantity,
	StateSummary:        StateCurrency,
}

// AfterDelivery returns the state following delivery method selection.
func AfterDelivery(promoEnabled bool) State {
	if promoEnabled {
		return StatePromoDecision
	}
	return StateCategory
}

// Previous returns the state "back" moves to from st.
func Previous(st State, promoEnabled bool) (State, bool) {
	if st == StateCategory && !promoEnabled {
		return StateDeliveryMethod, true
	}
	prev, ok := previous[st]
	return prev, ok
}

// Before reports whether a comes strictly earlier than b in the conversation.
func Before(a, b State) bool {
	return rank[a] < rank[b]
}

// ClearFrom drops every field captured at target or any later step.
func (s *Session) ClearFrom(target State) {
	at := rank[target]
	clearIf := func(st State, clear func()) {
		if at <= rank[st] {
			clear()
		}
	}

	clearIf(StateRegion, func() { s.Region = "" })
	clearIf(StateCity, func() { s.City = "" })
	clearIf(StateDeliveryMethod, func() {
		s.DeliveryMethod, s.DeliveryLabel, s.DeliveryFee = "", "", 0
	})
	clearIf(StatePromoCode, func() { s.PromoCode = "" })
	clearIf(StateCategory, func() { s.Category = "" })
	clearIf(StateProduct, func() { s.ProductName = "" })
	clearIf(StateQuantity, func() {
		s.Product, s.Quantity, s.UnitPrice = nil, "", 0
		s.AppliedDiscount, s.TotalPrice = 0, 0
	})
	clearIf(StateCurrency, func() { s.Currency, s.Wallet = "", "" })
	clearIf(StateAwaitingPayment, func() {
		s.ExpectedAmount = 0
		s.PaymentInProgress = false
	})
}
