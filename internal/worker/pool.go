package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"turbine-wpa/internal/engine"
	"turbine-wpa/internal/metrics"
	"turbine-wpa/internal/models"
)

var (
	// ErrQueueFull очередь расчетов заполнена
	ErrQueueFull = errors.New("computation queue is full")
	// ErrStopped пул остановлен
	ErrStopped = errors.New("worker pool is stopped")
)

// Computer выполняет расчет окна
type Computer interface {
	Compute(ctx context.Context, req engine.Request) (*models.Result, error)
}

// Job задание на расчет
type Job struct {
	Request  engine.Request
	CacheKey string
}

// Outcome итог выполнения задания
type Outcome struct {
	Job      Job
	Result   *models.Result
	Err      error
	Duration time.Duration
}

// Pool пул обработчиков асинхронных расчетов
type Pool struct {
	computer    Computer
	logger      *zap.Logger
	timeout     time.Duration
	jobsChan    chan Job
	resultsChan chan Outcome
	stopChan    chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once

	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

// NewPool создает пул; timeout ограничивает один расчет, 0 без ограничения
func NewPool(computer Computer, queueSize int, timeout time.Duration, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		computer:    computer,
		logger:      logger,
		timeout:     timeout,
		jobsChan:    make(chan Job, queueSize),
		resultsChan: make(chan Outcome, queueSize),
		stopChan:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start запускает обработчики в goroutines
func (p *Pool) Start(workers int) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.processJobs()
	}
	p.logger.Info("Worker pool started", zap.Int("workers", workers), zap.Int("queue", cap(p.jobsChan)))
}

// Stop прерывает выполняемые расчеты и дожидается обработчиков.
// Задания, оставшиеся в очереди, отбрасываются.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.cancel()
		p.wg.Wait()
		close(p.resultsChan)
		p.logger.Info("Worker pool stopped",
			zap.Int64("processed", p.processed.Load()),
			zap.Int("dropped", len(p.jobsChan)),
		)
	})
}

// Submit ставит задание в очередь без блокировки
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.stopChan:
		return ErrStopped
	default:
	}

	select {
	case p.jobsChan <- job:
		metrics.QueueSize.Set(float64(len(p.jobsChan)))
		return nil
	default:
		return ErrQueueFull
	}
}

// GetResultsChan возвращает канал с итогами; закрывается после Stop
func (p *Pool) GetResultsChan() <-chan Outcome {
	return p.resultsChan
}

// processJobs обрабатывает задания из очереди
func (p *Pool) processJobs() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case job := <-p.jobsChan:
			out := p.run(job)
			select {
			case p.resultsChan <- out:
			case <-p.stopChan:
				return
			}
		}
	}
}

func (p *Pool) run(job Job) Outcome {
	p.active.Add(1)
	metrics.ActiveJobs.Inc()
	defer func() {
		p.active.Add(-1)
		metrics.ActiveJobs.Dec()
	}()

	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.computer.Compute(ctx, job.Request)
	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}
	return Outcome{Job: job, Result: res, Err: err, Duration: time.Since(start)}
}

// GetStats возвращает статистику пула
func (p *Pool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"processed":  p.processed.Load(),
		"failed":     p.failed.Load(),
		"active":     p.active.Load(),
		"queue_size": len(p.jobsChan),
		"queue_cap":  cap(p.jobsChan),
	}
}
