package pool

import (
	"context"
	"sync"
)

// WorkerPool 固定大小的协程池，承载重试投递这类可丢弃的后台任务。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
}

// NewWorkerPool 创建协程池，queueSize 决定排队上限
func NewWorkerPool(maxWorkers, queueSize int) *WorkerPool {
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
	}
}

// Start 启动全部 worker，ctx 取消后各 worker 退出
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务，队列满时阻塞
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// TrySubmit 提交任务，队列满时立即返回 false，由调用方决定降级策略
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待在途任务执行完
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 隔离单个任务的 panic，避免拖垮整个池
func (p *WorkerPool) run(task func()) {
	defer func() {
		_ = recover()
	}()
	task()
}
