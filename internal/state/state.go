package state

import (
	"fmt"
	"time"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
)

// State is a position in the ordering conversation.
type State string

const (
	StateRegion          State = "region"
	StateCity            State = "city"
	StateDeliveryMethod  State = "delivery_method"
	StatePromoDecision   State = "promo_decision"
	StatePromoCode       State = "promo_code"
	StateCategory        State = "category"
	StateProduct         State = "product"
	StateQuantity        State = "quantity"
	StateCurrency        State = "currency"
	StateSummary         State = "summary"
	StateAwaitingPayment State = "awaiting_payment"
	StatePaymentVerify   State = "payment_verify"
	// StateDelivering is entered once payment is confirmed; the delivery simulator owns the session from here.
	StateDelivering State = "delivering"
)

// Initial is the state every new session starts in.
const Initial = StateRegion

// Session is the per-user order being assembled.
type Session struct {
	UserID     int64     `json:"user_id"`
	Generation uint64    `json:"generation"`
	Step       State     `json:"step"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Region         string  `json:"region,omitempty"`
	City           string  `json:"city,omitempty"`
	DeliveryMethod string  `json:"delivery_method,omitempty"`
	DeliveryLabel  string  `json:"delivery_label,omitempty"`
	DeliveryFee    float64 `json:"delivery_fee,omitempty"`
	PromoCode      string  `json:"promo_code,omitempty"`
	Category       string  `json:"category,omitempty"`
	// ProductName is the product picked at the product step; Product, Quantity and
	// UnitPrice are only filled once a tier is chosen.
	ProductName     string           `json:"product_name,omitempty"`
	Product         *catalog.Product `json:"product,omitempty"`
	Quantity        string           `json:"quantity,omitempty"`
	UnitPrice       float64          `json:"unit_price,omitempty"`
	AppliedDiscount float64          `json:"applied_discount,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Wallet          string           `json:"wallet,omitempty"`
	TotalPrice      float64          `json:"total_price,omitempty"`
	ExpectedAmount  float64          `json:"expected_amount,omitempty"`

	PaymentInProgress  bool `json:"payment_in_progress,omitempty"`
	DeliveryInProgress bool `json:"delivery_in_progress,omitempty"`
	CleanupScheduled   bool `json:"cleanup_scheduled,omitempty"`

	// MessageIDs tracks outbound messages so terminal cleanup can remove them.
	MessageIDs []int `json:"message_ids,omitempty"`
}

// Clone returns a deep copy safe to mutate independently.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cp := *s
	if s.Product != nil {
		product := *s.Product
		product.Prices = make(map[string]float64, len(s.Product.Prices))
		for tier, price := range s.Product.Prices {
			product.Prices[tier] = price
		}
		cp.Product = &product
	}
	if s.MessageIDs != nil {
		cp.MessageIDs = append([]int(nil), s.MessageIDs...)
	}
	return &cp
}

// TrackMessage remembers an outbound message id. Zero ids are ignored.
func (s *Session) TrackMessage(id int) {
	if id == 0 {
		return
	}
	s.MessageIDs = append(s.MessageIDs, id)
}

// Known reports whether st belongs to the workflow.
func Known(st State) bool {
	_, ok := rank[st]
	return ok
}

// Validate checks the session invariants. A failure means the session must be reset.
func (s *Session) Validate() error {
	if s == nil {
		return apperrors.NewSessionCorrupt("session is nil")
	}
	if !Known(s.Step) {
		return apperrors.NewSessionCorrupt(fmt.Sprintf("unknown step %q", s.Step))
	}

	hasProduct := s.Product != nil
	if hasProduct != (s.Quantity != "") || hasProduct != (s.UnitPrice > 0) {
		return apperrors.NewSessionCorrupt("product, quantity and unit price must be set together")
	}
	if s.PaymentInProgress && s.DeliveryInProgress {
		return apperrors.NewSessionCorrupt("payment and delivery cannot both be in progress")
	}
	if s.PaymentInProgress && s.Step != StateAwaitingPayment && s.Step != StatePaymentVerify {
		return apperrors.NewSessionCorrupt(fmt.Sprintf("payment in progress at step %q", s.Step))
	}
	if s.DeliveryInProgress != (s.Step == StateDelivering) {
		return apperrors.NewSessionCorrupt(fmt.Sprintf("delivery flag inconsistent with step %q", s.Step))
	}

	for _, field := range requiredFields(s) {
		if !field.present {
			return apperrors.NewSessionCorrupt(fmt.Sprintf("step %q requires %s", s.Step, field.name))
		}
	}

	return nil
}

type requirement struct {
	name    string
	present bool
	from    State
}

func requiredFields(s *Session) []requirement {
	all := []requirement{
		{name: "region", present: s.Region != "", from: StateCity},
		{name: "city", present: s.City != "", from: StateDeliveryMethod},
		{name: "delivery method", present: s.DeliveryMethod != "", from: StatePromoDecision},
		{name: "category", present: s.Category != "", from: StateProduct},
		{name: "product choice", present: s.ProductName != "", from: StateQuantity},
		{name: "product", present: s.Product != nil, from: StateCurrency},
		{name: "wallet", present: ValidWallet(s.Wallet) && s.Currency != "", from: StateSummary},
		{name: "expected amount", present: !s.PaymentInProgress || s.ExpectedAmount > 0, from: StateAwaitingPayment},
	}

	out := all[:0]
	for _, r := range all {
		if rank[s.Step] >= rank[r.from] {
			out = append(out, r)
		}
	}
	return out
}

// ValidWallet reports whether addr is at least eight alphanumeric characters.
func ValidWallet(addr string) bool {
	if len(addr) < 8 {
		return false
	}
	for _, r := range addr {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return false
		}
	}
	return true
}
