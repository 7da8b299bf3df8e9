package delivery

import "time"

// Step is one scripted notification. It fires Offset after delivery start plus
// a random extra delay of up to Jitter.
type Step struct {
	Offset time.Duration
	Jitter time.Duration
	Text   string
}

// Script is an ordered delivery timeline. The last step is the final notice.
type Script []Step

const (
	MethodCourier = "courier"
	MethodDropoff = "dropoff"
)

// DefaultScripts returns the stock timelines keyed by delivery method.
func DefaultScripts() map[string]Script {
	return map[string]Script{
		MethodCourier: {
			{Offset: 0, Text: "Заказ принят. Назначаем курьера."},
			{Offset: 5 * time.Minute, Text: "Курьер забрал заказ."},
			{Offset: 10 * time.Minute, Jitter: 4 * time.Minute, Text: "Курьер в пути."},
			{Offset: 18 * time.Minute, Jitter: time.Minute, Text: "Курьер подъезжает."},
			{Offset: 22 * time.Minute, Text: "Заказ доставлен. Спасибо за покупку!"},
		},
		MethodDropoff: {
			{Offset: 0, Text: "Заказ принят. Готовим закладку."},
			{Offset: 5 * time.Minute, Text: "Заказ упакован."},
			{Offset: 10 * time.Minute, Jitter: 4 * time.Minute, Text: "Заказ передан на точку выдачи."},
			{Offset: 18 * time.Minute, Jitter: time.Minute, Text: "Точка выдачи подтверждает размещение."},
			{Offset: 22 * time.Minute, Text: "Заказ готов к получению. Спасибо за покупку!"},
		},
	}
}

// schedule resolves jitter into absolute offsets that never go backwards.
func (s Script) schedule(jitter func(max time.Duration) time.Duration) []time.Duration {
	out := make([]time.Duration, len(s))
	var prev time.Duration
	for i, step := range s {
		at := step.Offset
		if step.Jitter > 0 {
			at += jitter(step.Jitter)
		}
		if at < prev {
			at = prev
		}
		out[i] = at
		prev = at
	}
	return out
}
