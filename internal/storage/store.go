// Package storage реализует сериализованное хранилище коллекции учётных записей.
//
// Store выполняет операции строго по одной в порядке поступления: каждая
// операция читает коллекцию из Backend, изменяет её и записывает целиком,
// и только после завершения записи начинается чтение следующей операции.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/metrics"
)

// ErrClosed возвращается операциям, поставленным в очередь после остановки Store.
var ErrClosed = errors.New("store is closed")

// Backend носитель коллекции. Save заменяет коллекцию целиком:
// неудачная запись не оставляет частично записанных данных.
type Backend interface {
	Load(ctx context.Context) (*Collection, error)
	Save(ctx context.Context, c *Collection) error
	Close() error
}

// WorkFunc тело критической секции. Ошибка отменяет запись.
type WorkFunc func(c *Collection) error

type operation struct {
	ctx      context.Context
	work     WorkFunc
	readOnly bool
	result   chan error
}

// Store очередь операций над коллекцией с одним исполнителем.
type Store struct {
	backend Backend
	log     *slog.Logger
	timeout time.Duration

	ops  chan *operation
	stop chan struct{}
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option настраивает Store.
type Option func(*Store)

// WithOperationTimeout ограничивает длительность загрузки и записи одной операции.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithQueueSize задаёт размер буфера очереди.
func WithQueueSize(n int) Option {
	return func(s *Store) {
		s.ops = make(chan *operation, n)
	}
}

// New создаёт Store и запускает исполнителя очереди.
func New(backend Backend, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		log:     log.With(slog.String("component", "storage")),
		ops:     make(chan *operation, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// Update выполняет work с исключительным доступом к коллекции и сохраняет результат.
//
// Если work вернула ошибку или запаниковала, изменения отбрасываются.
// Ошибка записи оборачивает ledger.ErrPersistence.
func (s *Store) Update(ctx context.Context, work WorkFunc) error {
	return s.submit(ctx, work, false)
}

// View выполняет work в той же очереди, но без записи.
func (s *Store) View(ctx context.Context, work WorkFunc) error {
	return s.submit(ctx, work, true)
}

// Close останавливает очередь, отклоняет ожидающие операции и закрывает Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return s.backend.Close()
}

func (s *Store) submit(ctx context.Context, work WorkFunc, readOnly bool) error {
	const op = "storage.submit"

	o := &operation{
		ctx:      ctx,
		work:     work,
		readOnly: readOnly,
		result:   make(chan error, 1),
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	metrics.StoreQueueDepth.Inc()
	select {
	case s.ops <- o:
	case <-ctx.Done():
		metrics.StoreQueueDepth.Dec()
		s.mu.RUnlock()
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	s.mu.RUnlock()

	// Поставленная операция всегда доводится до конца, поэтому ждём результат без отмены.
	return <-o.result
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case o := <-s.ops:
			metrics.StoreQueueDepth.Dec()
			o.result <- s.execute(o)
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Store) drain() {
	for {
		select {
		case o := <-s.ops:
			metrics.StoreQueueDepth.Dec()
			o.result <- fmt.Errorf("storage.execute: %w", ErrClosed)
		default:
			return
		}
	}
}

func (s *Store) execute(o *operation) (err error) {
	const op = "storage.execute"

	kind := "update"
	if o.readOnly {
		kind = "view"
	}
	start := time.Now()
	var rejected bool
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues(kind, metrics.StoreResult(err, rejected)).
			Observe(time.Since(start).Seconds())
	}()

	if ctxErr := o.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	ctx := o.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	coll, err := s.backend.Load(ctx)
	if err != nil {
		s.log.Error("failed to load collection", sl.Err(err))
		return fmt.Errorf("%s: load: %w: %w", op, ledger.ErrPersistence, err)
	}

	if panicked, err := runWork(o.work, coll); err != nil {
		rejected = !panicked
		return err
	}
	if o.readOnly {
		return nil
	}

	if err := s.backend.Save(ctx, coll); err != nil {
		s.log.Error("failed to save collection", sl.Err(err))
		return fmt.Errorf("%s: save: %w: %w", op, ledger.ErrPersistence, err)
	}
	return nil
}

// runWork выполняет работу и перехватывает панику. panicked отличает сбой
// от штатного отказа работы (не найдено, нечего делать и т.п.).
func runWork(work WorkFunc, coll *Collection) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("storage.runWork: work panicked: %v", r)
		}
	}()
	return false, work(coll)
}
