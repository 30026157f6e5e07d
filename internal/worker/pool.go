// Package worker реализует пул фоновых потоков с личными очередями и
// балансировкой по длине очереди.
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/annel0/voxel-terrain/internal/util"
)

// ErrPoolClosed возвращается при постановке задачи в закрытый пул
var ErrPoolClosed = errors.New("worker pool closed")

// MinWorkers нижняя граница размера пула
const MinWorkers = 2

// Task единица работы для пула
type Task interface {
	Execute()
}

// TaskFunc адаптер функции к Task
type TaskFunc func()

// Execute реализует Task
func (f TaskFunc) Execute() { f() }

type worker struct {
	id    int
	queue *util.Queue[Task]
	wake  chan struct{}
	busy  atomic.Bool
}

// Pool набор воркеров. Каждый воркер закреплён за потоком ОС и разбирает свою FIFO-очередь.
type Pool struct {
	workers []*worker

	mu      sync.Mutex
	idle    *sync.Cond
	pending int

	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// CoreCount число логических ядер. gopsutil предпочтительнее, runtime.NumCPU запасной вариант.
func CoreCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// DefaultSize размер пула max(cores - reserved, 2). Сервер оставляет два ядра, клиент одно.
func DefaultSize(server bool) int {
	reserved := 1
	if server {
		reserved = 2
	}
	return SizeFor(CoreCount(), reserved)
}

// SizeFor вычисляет размер пула по числу ядер и зарезервированных потоков
func SizeFor(cores, reserved int) int {
	if n := cores - reserved; n > MinWorkers {
		return n
	}
	return MinWorkers
}

// NewPool запускает size воркеров (не меньше MinWorkers)
func NewPool(size int) *Pool {
	if size < MinWorkers {
		size = MinWorkers
	}
	p := &Pool{
		workers: make([]*worker, size),
		done:    make(chan struct{}),
	}
	p.idle = sync.NewCond(&p.mu)

	for i := range p.workers {
		w := &worker{
			id:    i,
			queue: util.NewQueue[Task](64),
			wake:  make(chan struct{}, 1),
		}
		p.workers[i] = w
		p.wg.Add(1)
		go p.run(w)
	}
	return p
}

// Size число воркеров
func (p *Pool) Size() int {
	return len(p.workers)
}

// Submit ставит задачу воркеру: среди простаивающих выбирается самая короткая очередь,
// если все заняты, задача уходит последнему просмотренному.
func (p *Pool) Submit(task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	var target *worker
	bestLen := -1
	for _, w := range p.workers {
		if w.busy.Load() {
			continue
		}
		if l := w.queue.Len(); bestLen < 0 || l < bestLen {
			target, bestLen = w, l
		}
	}
	if target == nil {
		target = p.workers[len(p.workers)-1]
	}

	// closed проверяется под mu: Close выставляет флаг под той же блокировкой,
	// поэтому задача либо попадёт в очередь до его выгрузки, либо будет отклонена
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.pending++
	target.queue.Push(task)
	p.mu.Unlock()

	select {
	case target.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Pool) run(w *worker) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		task, ok := w.queue.Pop()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-p.done:
				return
			}
		}

		if p.closed.Load() {
			p.dropped.Add(1)
			p.finish()
			continue
		}

		w.busy.Store(true)
		p.execute(task)
		w.busy.Store(false)
		p.finish()
	}
}

func (p *Pool) execute(task Task) {
	task.Execute()
}

func (p *Pool) finish() {
	p.mu.Lock()
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// Pending число задач в очередях и в работе
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// QueueLengths длины личных очередей воркеров
func (p *Pool) QueueLengths() []int {
	lengths := make([]int, len(p.workers))
	for i, w := range p.workers {
		lengths[i] = w.queue.Len()
	}
	return lengths
}

// WaitIdle блокирует до опустошения всех очередей. Служит барьером между фазами генерации.
func (p *Pool) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.idle.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.idle.Wait()
	}
	return nil
}

// Close запрещает новые задачи, дожидается текущих и останавливает воркеры.
// Задачи, оставшиеся в очередях, отбрасываются. Возвращает их число.
func (p *Pool) Close() int64 {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return p.dropped.Load()
	}
	p.closed.Store(true)
	p.mu.Unlock()

	for _, w := range p.workers {
		for {
			if _, ok := w.queue.Pop(); !ok {
				break
			}
			p.dropped.Add(1)
			p.finish()
		}
	}
	close(p.done)
	p.wg.Wait()
	return p.dropped.Load()
}
