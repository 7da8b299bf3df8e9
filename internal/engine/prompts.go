package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	"github.com/Proton-105/storefront-bot/internal/notify"
	"github.com/Proton-105/storefront-bot/internal/state"
)

const disabledMark = "🚫 "

const (
	msgReject          = "Некорректное действие. Используйте кнопки ниже."
	msgFlood           = "Слишком частые подтверждения. Сессия сброшена."
	msgCorrupt         = "Сессия устарела и была сброшена."
	msgFailure         = "Произошла ошибка. Начинаем заново."
	msgCancelled       = "Заказ отменён."
	msgPaymentReceived = "Оплата получена. Заказ передан в доставку."
	msgDelivering      = "Заказ уже в доставке. Дождитесь завершения."
)

// prompt builds the message asking for input at the session's current step.
func (e *Engine) prompt(sess *state.Session) notify.Message {
	nav := []string{LabelBack, LabelRestart}

	switch sess.Step {
	case state.StateRegion:
		return promptMsg("Выберите регион:", optionLabels(e.catalog.Regions()), LabelRestart)
	case state.StateCity:
		return promptMsg("Выберите город:", optionLabels(e.catalog.Cities(sess.Region)), nav...)
	case state.StateDeliveryMethod:
		methods := e.catalog.DeliveryMethods()
		labels := make([]string, 0, len(methods))
		for _, m := range methods {
			labels = append(labels, m.Label)
		}
		return promptMsg("Выберите способ доставки:", labels, nav...)
	case state.StatePromoDecision:
		return promptMsg("Есть промокод?", []string{LabelYes, LabelNo}, nav...)
	case state.StatePromoCode:
		return promptMsg("Введите промокод:", []string{LabelSkip}, nav...)
	case state.StateCategory:
		return promptMsg("Выберите категорию:", e.catalog.Categories(), nav...)
	case state.StateProduct:
		products := e.catalog.Products(sess.Category)
		labels := make([]string, 0, len(products))
		for _, p := range products {
			labels = append(labels, markDisabled(p.Name, p.Active))
		}
		return promptMsg("Выберите товар:", labels, nav...)
	case state.StateQuantity:
		return promptMsg("Выберите количество:", e.tierLabels(sess), nav...)
	case state.StateCurrency:
		currencies := e.catalog.Currencies()
		labels := make([]string, 0, len(currencies))
		for _, c := range currencies {
			labels = append(labels, c.Key)
		}
		return promptMsg("Выберите валюту оплаты:", labels, nav...)
	case state.StateSummary:
		msg := promptMsg(summaryText(sess), []string{LabelConfirm}, nav...)
		msg.Kind = notify.KindSummary
		return msg
	case state.StateAwaitingPayment:
		text := fmt.Sprintf(
			"Переведите %s %s на адрес:\n%s\n\nПосле оплаты нажмите «Подтвердить». Заказ действует %s.",
			formatAmount(sess.ExpectedAmount), e.symbol(sess), sess.Wallet, e.paymentWindow(),
		)
		return notify.Message{Text: text, Options: []string{LabelConfirm, LabelCancel}, Kind: notify.KindPayment}
	case state.StatePaymentVerify:
		return notify.Message{
			Text:    "Оплата пока не поступила. Проверьте перевод и нажмите «Подтвердить» ещё раз.",
			Options: []string{LabelConfirm, LabelCancel},
			Kind:    notify.KindPayment,
		}
	default:
		return notify.Message{Text: msgDelivering, Options: []string{LabelRestart}, Kind: notify.KindNotice}
	}
}

func promptMsg(text string, options []string, nav ...string) notify.Message {
	opts := make([]string, 0, len(options)+len(nav))
	opts = append(opts, options...)
	opts = append(opts, nav...)
	return notify.Message{Text: text, Options: opts, Kind: notify.KindPrompt}
}

// optionLabels keeps disabled entries visible but marked so they never match a valid selection.
func optionLabels(options []catalog.Option) []string {
	labels := make([]string, 0, len(options))
	for _, o := range options {
		labels = append(labels, markDisabled(o.Label, o.Active))
	}
	return labels
}

func markDisabled(label string, active bool) string {
	if active {
		return label
	}
	return disabledMark + label
}

func (e *Engine) tierLabels(sess *state.Session) []string {
	product, ok := e.findProduct(sess.Category, sess.ProductName)
	if !ok {
		return nil
	}

	tiers := make([]string, 0, len(product.Prices))
	for tier := range product.Prices {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return product.Prices[tiers[i]] < product.Prices[tiers[j]] })

	labels := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		labels = append(labels, fmt.Sprintf("%s (%s)", tier, formatMoney(product.Prices[tier])))
	}
	return labels
}

func summaryText(sess *state.Session) string {
	var b strings.Builder
	b.WriteString("Ваш заказ:\n")
	fmt.Fprintf(&b, "Город: %s, %s\n", sess.City, sess.Region)
	fmt.Fprintf(&b, "Доставка: %s (%s)\n", sess.DeliveryLabel, formatMoney(sess.DeliveryFee))
	fmt.Fprintf(&b, "Товар: %s, %s\n", sess.ProductName, sess.Quantity)
	if sess.AppliedDiscount > 0 {
		fmt.Fprintf(&b, "Скидка: %s%%\n", strconv.FormatFloat(sess.AppliedDiscount, 'f', -1, 64))
	}
	fmt.Fprintf(&b, "Оплата: %s\n", sess.Currency)
	fmt.Fprintf(&b, "Итого: %s", formatMoney(sess.TotalPrice))
	return b.String()
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
