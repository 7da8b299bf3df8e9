package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	"github.com/Proton-105/storefront-bot/internal/discount"
	"github.com/Proton-105/storefront-bot/internal/notify"
	"github.com/Proton-105/storefront-bot/internal/state"
)

// errRejected means the input matched none of the step's options.
var errRejected = errors.New("input rejected")

// errRestart asks the engine to tear the session down and start over.
var errRestart = errors.New("restart requested")

// stepFunc validates input at one step. It mutates only the working copy and
// returns the step to move to.
type stepFunc func(ctx context.Context, sess *state.Session, text string, cmd Command) (state.State, error)

func (e *Engine) steps() map[state.State]stepFunc {
	return map[state.State]stepFunc{
		state.StateRegion:          e.selectRegion,
		state.StateCity:            e.selectCity,
		state.StateDeliveryMethod:  e.selectDelivery,
		state.StatePromoDecision:   e.decidePromo,
		state.StatePromoCode:       e.enterPromo,
		state.StateCategory:        e.selectCategory,
		state.StateProduct:         e.selectProduct,
		state.StateQuantity:        e.selectQuantity,
		state.StateCurrency:        e.selectCurrency,
		state.StateSummary:         e.confirmSummary,
		state.StateAwaitingPayment: e.confirmPayment,
		state.StatePaymentVerify:   e.confirmPayment,
	}
}

func (e *Engine) selectRegion(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	label, ok := matchActive(e.catalog.Regions(), text)
	if !ok {
		return "", errRejected
	}
	sess.Region = label
	return state.StateCity, nil
}

func (e *Engine) selectCity(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	label, ok := matchActive(e.catalog.Cities(sess.Region), text)
	if !ok {
		return "", errRejected
	}
	sess.City = label
	return state.StateDeliveryMethod, nil
}

func (e *Engine) selectDelivery(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	for _, m := range e.catalog.DeliveryMethods() {
		if strings.EqualFold(m.Label, text) {
			sess.DeliveryMethod = m.Key
			sess.DeliveryLabel = m.Label
			sess.DeliveryFee = m.Fee
			return state.AfterDelivery(e.cfg.PromoEnabled), nil
		}
	}
	return "", errRejected
}

func (e *Engine) decidePromo(_ context.Context, _ *state.Session, _ string, cmd Command) (state.State, error) {
	switch cmd {
	case CmdYes:
		return state.StatePromoCode, nil
	case CmdNo, CmdSkip:
		return state.StateCategory, nil
	default:
		return "", errRejected
	}
}

func (e *Engine) enterPromo(_ context.Context, sess *state.Session, text string, cmd Command) (state.State, error) {
	if cmd == CmdSkip {
		sess.PromoCode = ""
		return state.StateCategory, nil
	}
	if !discount.CodeActive(e.catalog.Discounts(), text) {
		return "", errRejected
	}
	sess.PromoCode = discount.Normalize(text)
	return state.StateCategory, nil
}

func (e *Engine) selectCategory(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	for _, key := range e.catalog.Categories() {
		if strings.EqualFold(key, text) {
			sess.Category = key
			return state.StateProduct, nil
		}
	}
	return "", errRejected
}

func (e *Engine) selectProduct(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	product, ok := e.findProduct(sess.Category, text)
	if !ok || !product.Active {
		return "", errRejected
	}
	sess.ProductName = product.Name
	return state.StateQuantity, nil
}

func (e *Engine) selectQuantity(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	product, ok := e.findProduct(sess.Category, sess.ProductName)
	if !ok || !product.Active {
		return "", errRejected
	}

	token := QuantityToken(text)
	price, ok := product.Prices[token]
	if !ok || price <= 0 {
		return "", errRejected
	}

	pct := discount.Resolve(e.catalog.Discounts(), discount.Scopes{
		PromoCode: sess.PromoCode,
		UserID:    strconv.FormatInt(sess.UserID, 10),
		Region:    sess.Region,
		City:      sess.City,
		Category:  sess.Category,
		Product:   product.Name,
	})

	sess.Product = &product
	sess.Quantity = token
	sess.UnitPrice = price
	sess.AppliedDiscount = pct
	sess.TotalPrice = round2(price*(1-pct/100) + sess.DeliveryFee)
	return state.StateCurrency, nil
}

func (e *Engine) selectCurrency(_ context.Context, sess *state.Session, text string, _ Command) (state.State, error) {
	for _, c := range e.catalog.Currencies() {
		if strings.EqualFold(c.Key, text) && state.ValidWallet(c.WalletAddress) {
			sess.Currency = c.Key
			sess.Wallet = c.WalletAddress
			return state.StateSummary, nil
		}
	}
	return "", errRejected
}

func (e *Engine) confirmSummary(ctx context.Context, sess *state.Session, _ string, cmd Command) (state.State, error) {
	if cmd != CmdConfirm {
		return "", errRejected
	}

	if _, err := e.payments.Initiate(ctx, sess); err != nil {
		userMsg, _ := e.errors.Handle(ctx, err)
		e.reply(ctx, sess, notify.Message{Text: userMsg, Kind: notify.KindNotice})
		return state.StateSummary, nil
	}
	return state.StateAwaitingPayment, nil
}

func (e *Engine) confirmPayment(ctx context.Context, sess *state.Session, _ string, cmd Command) (state.State, error) {
	switch cmd {
	case CmdCancel:
		return "", errRestart
	case CmdConfirm:
	default:
		return "", errRejected
	}

	paid, err := e.payments.Confirm(ctx, sess)
	if err != nil {
		return "", err
	}
	if !paid {
		return state.StatePaymentVerify, nil
	}

	e.reply(ctx, sess, notify.Message{Text: msgPaymentReceived, Kind: notify.KindPayment})
	if err := e.delivery.Start(ctx, sess); err != nil {
		return "", err
	}
	return state.StateDelivering, nil
}

func matchActive(options []catalog.Option, text string) (string, bool) {
	for _, o := range options {
		if o.Active && strings.EqualFold(o.Label, text) {
			return o.Label, true
		}
	}
	return "", false
}

func (e *Engine) findProduct(category, name string) (catalog.Product, bool) {
	for _, p := range e.catalog.Products(category) {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return catalog.Product{}, false
}
