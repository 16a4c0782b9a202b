package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/grocery"
	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

// Command errors.
var (
	ErrNoSuchItem = errors.New("no such item")
	ErrNotSynced  = errors.New("lists did not sync in time")
)

// cli runs one command against a session.
type cli struct {
	session     *grocery.Session
	syncTimeout time.Duration
	stdin       io.Reader
	stdout      io.Writer
	logger      *zap.Logger
}

// mount opens the session and waits for both lists to arrive.
func (c *cli) mount(ctx context.Context) (func(), error) {
	changes, release := c.session.Changes()
	defer release()

	if err := c.session.Mount(ctx); err != nil {
		return nil, err
	}
	unmount := func() {
		if err := c.session.Unmount(); err != nil {
			c.logger.Warn("error unmounting session", zap.Error(err))
		}
	}

	timer := time.NewTimer(c.syncTimeout)
	defer timer.Stop()
	for !c.session.Synced() {
		select {
		case <-changes:
		case <-timer.C:
			unmount()
			if err := c.session.SyncError(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrNotSynced, err)
			}
			return nil, ErrNotSynced
		case <-ctx.Done():
			unmount()
			return nil, ctx.Err()
		}
	}

	return unmount, nil
}

func (c *cli) list(ctx context.Context) error {
	unmount, err := c.mount(ctx)
	if err != nil {
		return err
	}
	defer unmount()

	c.render()
	return nil
}

func (c *cli) add(ctx context.Context, name string) error {
	unmount, err := c.mount(ctx)
	if err != nil {
		return err
	}
	defer unmount()

	c.session.SetDraft(name)
	item, err := c.session.SubmitDraft(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Added %s (%s).\n", item.Name, item.ID)
	return nil
}

func (c *cli) purchase(ctx context.Context, id string, yes bool) error {
	unmount, err := c.mount(ctx)
	if err != nil {
		return err
	}
	defer unmount()

	item, ok := findItem(c.session.ToBuy(), id)
	if !ok {
		return fmt.Errorf("%w in to-buy: %s", ErrNoSuchItem, id)
	}
	if err := c.session.Select(item); err != nil {
		return err
	}

	if !yes && !c.confirm(fmt.Sprintf("Purchase %s? [y/N] ", item.Name)) {
		if err := c.session.Cancel(); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "Cancelled.")
		return nil
	}

	purchased, err := c.session.Confirm(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Purchased %s (%s).\n", purchased.Name, purchased.ID)
	return nil
}

func (c *cli) unpurchase(ctx context.Context, id string) error {
	unmount, err := c.mount(ctx)
	if err != nil {
		return err
	}
	defer unmount()

	item, ok := findItem(c.session.Purchased(), id)
	if !ok {
		return fmt.Errorf("%w in purchased: %s", ErrNoSuchItem, id)
	}
	if err := c.session.Unpurchase(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Removed %s from purchased.\n", item.Name)
	return nil
}

// watch prints both lists whenever they change until ctx is done.
func (c *cli) watch(ctx context.Context) error {
	changes, release := c.session.Changes()
	defer release()

	unmount, err := c.mount(ctx)
	if err != nil {
		return err
	}
	defer unmount()

	last := c.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if next := c.format(); next != last {
				fmt.Fprint(c.stdout, next)
				last = next
			}
		}
	}
}

// confirm asks prompt on stdout and reads the answer from stdin.
func (c *cli) confirm(prompt string) bool {
	fmt.Fprint(c.stdout, prompt)

	answer, err := bufio.NewReader(c.stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// render prints the lists and returns what it printed.
func (c *cli) render() string {
	out := c.format()
	fmt.Fprint(c.stdout, out)
	return out
}

func (c *cli) format() string {
	var b strings.Builder

	writeList(&b, "To buy", c.session.ToBuy())
	writeList(&b, "Recently purchased", c.session.Purchased())
	if err := c.session.SyncError(); err != nil {
		fmt.Fprintf(&b, "Sync error: %v\n", err)
	}

	return b.String()
}

func writeList(b *strings.Builder, title string, items []model.GroceryItem) {
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	if len(items) == 0 {
		b.WriteString("  (empty)\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "  %s  %s\n", item.ID, item.Name)
	}
}

func findItem(items []model.GroceryItem, id string) (model.GroceryItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return model.GroceryItem{}, false
}
