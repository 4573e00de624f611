package notify

import (
	"context"

	"github.com/wolfeidau/boxstock/inventory"
)

// AutoConfirm wraps a notifier and answers yes to every question after
// echoing it as a message.
type AutoConfirm struct {
	inventory.Notifier
}

// NewAutoConfirm wraps n.
func NewAutoConfirm(n inventory.Notifier) *AutoConfirm {
	return &AutoConfirm{Notifier: n}
}

func (a *AutoConfirm) OnQuestion(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.OnMessage(question + "? yes")
	return true, nil
}

var (
	_ inventory.Notifier = (*Console)(nil)
	_ inventory.Notifier = (*Logger)(nil)
	_ inventory.Notifier = (*AutoConfirm)(nil)
)
