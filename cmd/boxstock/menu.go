package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/wolfeidau/boxstock/expiry"
	"github.com/wolfeidau/boxstock/inventory"
	"github.com/wolfeidau/boxstock/notify"
)

const menuText = `What do you want to do:
1 - Supply
2 - Show box data
3 - Purchase
4 - Exit program
5 - Show expired boxes
6 - Sweep expired boxes now
7 - List all boxes
8 - Check inventory consistency`

type menu struct {
	inv     *inventory.Inventory
	console *notify.Console
	sweeper *expiry.Manager
	out     io.Writer
	logger  *slog.Logger
}

func (m *menu) run(ctx context.Context) error {
	for {
		m.println(menuText)
		action, err := m.console.ReadLine(ctx)
		if err != nil {
			return err
		}

		switch action {
		case "1":
			err = m.supply(ctx)
		case "2":
			err = m.query(ctx)
		case "3":
			err = m.purchase(ctx)
		case "4":
			m.println("Exit Program")
			return nil
		case "5":
			if due := m.inv.ReportDueSoon(ctx); len(due) == 0 {
				m.println("No expired boxes")
			}
		case "6":
			result := m.sweeper.RunNow(ctx)
			m.printf("Removed %d expired box types, %d remaining\n", result.Evicted, result.Remaining)
		case "7":
			m.list()
		case "8":
			if err := m.inv.Verify(); err != nil {
				m.logger.Error("inventory check failed", "error", err)
				m.printf("Inventory check failed: %v\n", err)
			} else {
				m.println("Inventory is consistent")
			}
		default:
			m.println("Action not found")
		}

		if err != nil {
			return err
		}
	}
}

func (m *menu) supply(ctx context.Context) error {
	bottom, height, ok, err := m.readDimensions(ctx)
	if err != nil || !ok {
		return err
	}
	amount, ok, err := m.readInt(ctx, "Enter amount:")
	if err != nil || !ok {
		return err
	}

	// Rejections are reported through the notifier.
	if _, err := m.inv.Supply(ctx, bottom, height, amount); err != nil {
		m.logger.Debug("supply rejected", "error", err)
	}
	return nil
}

func (m *menu) query(ctx context.Context) error {
	bottom, height, ok, err := m.readDimensions(ctx)
	if err != nil || !ok {
		return err
	}
	m.inv.Query(ctx, bottom, height)
	return nil
}

func (m *menu) purchase(ctx context.Context) error {
	bottom, height, ok, err := m.readDimensions(ctx)
	if err != nil || !ok {
		return err
	}
	count, ok, err := m.readInt(ctx, "Enter count:")
	if err != nil || !ok {
		return err
	}

	result, err := m.inv.Purchase(ctx, bottom, height, count)
	if err != nil {
		m.printf("Purchase abandoned: %v\n", err)
		// A cancelled context ends the menu; a question timeout only
		// abandons this purchase.
		return ctx.Err()
	}
	if taken := result.Taken(); taken > 0 {
		m.printf("Purchased %d of %d boxes\n", taken, result.Requested)
	}
	return nil
}

func (m *menu) list() {
	stock := m.inv.List()
	if len(stock) == 0 {
		m.println("Inventory is empty")
		return
	}
	for _, s := range stock {
		m.printf("bottom size: %g, height: %g, count: %d, expires at: %s\n",
			s.Key.Bottom, s.Key.Height, s.Count, s.ExpiresAt.Format(time.DateTime))
	}
}

func (m *menu) readDimensions(ctx context.Context) (bottom, height float64, ok bool, err error) {
	bottom, ok, err = m.readFloat(ctx, "Enter bottomSize:")
	if err != nil || !ok {
		return 0, 0, ok, err
	}
	height, ok, err = m.readFloat(ctx, "Enter height:")
	return bottom, height, ok, err
}

func (m *menu) readFloat(ctx context.Context, prompt string) (float64, bool, error) {
	m.println(prompt)
	line, err := m.console.ReadLine(ctx)
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		m.printf("Invalid number: %q\n", line)
		return 0, false, nil
	}
	return v, true, nil
}

func (m *menu) readInt(ctx context.Context, prompt string) (int, bool, error) {
	m.println(prompt)
	line, err := m.console.ReadLine(ctx)
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		m.printf("Invalid number: %q\n", line)
		return 0, false, nil
	}
	return v, true, nil
}

func (m *menu) println(s string) {
	_, _ = fmt.Fprintln(m.out, s)
}

func (m *menu) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.out, format, args...)
}
