package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fjod/cartsync/internal/client/bridge"
	"github.com/fjod/cartsync/internal/client/store"
	"github.com/fjod/cartsync/internal/domain"
)

var errQuit = errors.New("quit")

type productSource interface {
	Product(ctx context.Context, id string) (*domain.Product, error)
}

type session interface {
	Authenticate(token string) error
	Logout()
	Refresh() error
	Phase() bridge.Phase
	Err() error
	Pushes() int64
}

type shell struct {
	store    *store.Store
	session  session
	products productSource
	timeout  time.Duration
	out      io.Writer
}

const help = `commands:
  login <token>        start a session and pull the server cart
  logout               end the session
  add <id> [qty]       add a product to the cart
  qty <id> <n>         set a quantity (0 removes)
  rm <id>              remove from the cart
  save <id>            move a cart line to save-for-later
  unsave <id>          remove from save-for-later
  move <id>            move a saved item back to the cart
  clear                empty the cart
  clear-saved          empty save-for-later
  list                 show both lists and sync state
  refresh              pull the server cart again
  quit`

func (s *shell) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(s.out, "> ")
	for scanner.Scan() {
		err := s.exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		fmt.Fprint(s.out, "> ")
	}
	return scanner.Err()
}

func (s *shell) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, help)
	case "quit", "exit":
		return errQuit
	case "login":
		if len(args) != 1 {
			return errors.New("usage: login <token>")
		}
		return s.session.Authenticate(args[0])
	case "logout":
		s.session.Logout()
	case "add":
		return s.add(args)
	case "qty":
		if len(args) != 2 {
			return errors.New("usage: qty <id> <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		s.store.UpdateQuantity(args[0], n)
	case "rm":
		if len(args) != 1 {
			return errors.New("usage: rm <id>")
		}
		s.store.RemoveFromCart(args[0])
	case "save":
		return s.save(args)
	case "unsave":
		if len(args) != 1 {
			return errors.New("usage: unsave <id>")
		}
		s.store.RemoveFromSaveForLater(args[0])
	case "move":
		if len(args) != 1 {
			return errors.New("usage: move <id>")
		}
		s.store.MoveToCart(args[0])
	case "clear":
		s.store.ClearCart()
	case "clear-saved":
		s.store.ClearSaveForLater()
	case "list":
		s.list()
	case "refresh":
		return s.session.Refresh()
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *shell) add(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: add <id> [qty]")
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		qty = n
	}

	p, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	s.store.AddToCart(*p, qty)
	return nil
}

func (s *shell) save(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: save <id>")
	}
	for _, item := range s.store.Cart() {
		if item.Ref() == args[0] {
			s.store.AddToSaveForLater(item)
			return nil
		}
	}

	p, err := s.lookup(args[0])
	if err != nil {
		return err
	}
	s.store.AddToSaveForLater(domain.CartItem{Product: *p, Quantity: 1})
	return nil
}

func (s *shell) lookup(id string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	p, err := s.products.Product(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	return p, nil
}

func (s *shell) list() {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CART\tNAME\tQTY\tPRICE")
	for _, item := range s.store.Cart() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", item.Ref(), item.Name, item.Quantity, item.Price)
	}
	fmt.Fprintf(tw, "\ttotal\t\t%.2f\n", s.store.TotalPrice())
	if saved := s.store.SaveForLater(); len(saved) > 0 {
		fmt.Fprintln(tw, "SAVED\tNAME\tQTY\tPRICE")
		for _, item := range saved {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", item.Ref(), item.Name, item.Quantity, item.Price)
		}
	}
	tw.Flush()

	status := fmt.Sprintf("sync: %s, pushes: %d", s.session.Phase(), s.session.Pushes())
	if err := s.session.Err(); err != nil {
		status += fmt.Sprintf(", last pull failed: %v (run refresh to retry)", err)
	}
	fmt.Fprintln(s.out, status)
}
