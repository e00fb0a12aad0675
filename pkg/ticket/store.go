package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/harunnryd/reliefline/pkg/errorsx"
)

var ErrNotFound = errors.New("ticket: not found")

const keyPrefix = "tickets/"

// Store persists tickets.
type Store interface {
	Put(ctx context.Context, t Ticket) error
	Get(ctx context.Context, id string) (Ticket, error)
	List(ctx context.Context) ([]Ticket, error)
	Close() error
}

type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// BadgerStore keeps tickets as JSON documents under tickets/<id>.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errorsx.Errorf(errorsx.ReasonConfig, "ticket: store dir required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger.With("component", "ticket_store")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("ticket: open store: %w", err), errorsx.ReasonTicketStore)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(_ context.Context, t Ticket) error {
	if t.ID == "" {
		return errors.New("ticket: id required")
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+t.ID), b)
	})
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("ticket: put %s: %w", t.ID, err), errorsx.ReasonTicketStore)
	}
	return nil
}

func (s *BadgerStore) Get(_ context.Context, id string) (Ticket, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, errorsx.Wrap(fmt.Errorf("ticket: get %s: %w", id, err), errorsx.ReasonTicketStore)
	}
	var t Ticket
	if err := json.Unmarshal(val, &t); err != nil {
		return Ticket{}, fmt.Errorf("ticket: decode %s: %w", id, err)
	}
	return t, nil
}

// List returns every ticket, oldest first.
func (s *BadgerStore) List(_ context.Context) ([]Ticket, error) {
	var out []Ticket
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var t Ticket
			if err := json.Unmarshal(val, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("ticket: list: %w", err), errorsx.ReasonTicketStore)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's warnings and errors to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error("badger", "msg", fmt.Sprintf(f, v...))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn("badger", "msg", fmt.Sprintf(f, v...))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
