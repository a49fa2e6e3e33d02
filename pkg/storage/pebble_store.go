package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderdesk/pkg/metrics"
	"github.com/uhyunpark/orderdesk/pkg/order"
)

// PebbleStore keeps orders and trades in a local Pebble database.
type PebbleStore struct {
	db *pebble.DB

	// Logger reports records that no longer decode. They are left out of
	// query results.
	Logger *zap.SugaredLogger
}

// NewPebbleStore opens (or creates) the database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	cache := pebble.NewCache(64 << 20)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:        cache,
		MemTableSize: 16 << 20,
		BytesPerSync: 512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db, Logger: zap.NewNop().Sugar()}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	if err := checkCtx(ctx, "create"); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, order.Unavailable("create", err)
	}
	created := o.Clone()
	created.ID = id.String()

	val, err := encodeOrder(created)
	if err != nil {
		return nil, order.Unavailable("create", err)
	}
	if err := s.db.Set(orderKey(created.ID), val, pebble.Sync); err != nil {
		return nil, order.Unavailable("create", err)
	}
	return created, nil
}

func (s *PebbleStore) Get(ctx context.Context, id string) (*order.Order, error) {
	if err := checkCtx(ctx, "get"); err != nil {
		return nil, err
	}
	return s.load(id)
}

func (s *PebbleStore) load(id string) (*order.Order, error) {
	val, closer, err := s.db.Get(orderKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, order.Errorf(order.KindNotFound, "get", id, "order not found")
	}
	if err != nil {
		return nil, order.Unavailable("get", err)
	}
	defer closer.Close()

	o, err := decodeOrder(val)
	if err != nil {
		return nil, order.Unavailable("get", err)
	}
	return o, nil
}

func (s *PebbleStore) Update(ctx context.Context, o *order.Order) error {
	if err := checkCtx(ctx, "update"); err != nil {
		return err
	}
	if _, err := s.load(o.ID); err != nil {
		return err
	}
	val, err := encodeOrder(o)
	if err != nil {
		return order.Unavailable("update", err)
	}
	if err := s.db.Set(orderKey(o.ID), val, pebble.Sync); err != nil {
		return order.Unavailable("update", err)
	}
	return nil
}

// CommitMatch writes both orders and the trade through a single Pebble
// batch, which is applied atomically.
func (s *PebbleStore) CommitMatch(ctx context.Context, buy, sell *order.Order, trade *order.Trade) error {
	if err := checkCtx(ctx, "commit match"); err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, o := range []*order.Order{buy, sell} {
		val, err := encodeOrder(o)
		if err != nil {
			return order.Unavailable("commit match", err)
		}
		if err := batch.Set(orderKey(o.ID), val, nil); err != nil {
			return order.Unavailable("commit match", err)
		}
	}
	val, err := encodeTrade(trade)
	if err != nil {
		return order.Unavailable("commit match", err)
	}
	if err := batch.Set(tradeKey(trade.ExecutedAt, trade.ID), val, nil); err != nil {
		return order.Unavailable("commit match", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return order.Unavailable("commit match", err)
	}
	return nil
}

func (s *PebbleStore) Query(ctx context.Context, f Filter) ([]*order.Order, error) {
	if err := checkCtx(ctx, "query"); err != nil {
		return nil, err
	}
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, order.Unavailable("query", err)
	}
	defer iter.Close()

	var out []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		o, err := decodeOrder(iter.Value())
		if err != nil {
			s.unreadable("order", iter.Key(), err)
			continue
		}
		if f.match(o) {
			out = append(out, o)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, order.Unavailable("query", err)
	}
	sortByCreation(out)
	return out, nil
}

func (s *PebbleStore) RecentTrades(ctx context.Context, limit int) ([]*order.Trade, error) {
	if err := checkCtx(ctx, "recent trades"); err != nil {
		return nil, err
	}
	prefix := []byte(prefixTrade)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, order.Unavailable("recent trades", err)
	}
	defer iter.Close()

	var trades []*order.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		t, err := decodeTrade(iter.Value())
		if err != nil {
			s.unreadable("trade", iter.Key(), err)
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (s *PebbleStore) unreadable(kind string, key []byte, err error) {
	metrics.UnreadableRecords.WithLabelValues(kind).Inc()
	s.Logger.Errorw("store_record_unreadable", "kind", kind, "key", string(key), "err", err)
}

var _ Store = (*PebbleStore)(nil)
