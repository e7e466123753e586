package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"civic-reports/internal/models"
	"civic-reports/internal/queue/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

type issueHandler interface {
	ProcessIssue(ctx context.Context, event models.IssueCreatedEvent) (string, error)
}

// Pool fans deliveries out to a fixed number of goroutines.
type Pool struct {
	handler     issueHandler
	size        int
	taskTimeout time.Duration
}

func NewPool(handler issueHandler, size int, taskTimeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}
	return &Pool{handler: handler, size: size, taskTimeout: taskTimeout}
}

// Run consumes msgs until the channel closes or ctx is done, then waits for
// in-flight tasks.
func (p *Pool) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	tasks := make(chan amqp.Delivery, p.size)
	var wg sync.WaitGroup

	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Printf("Worker %d started", workerID)
			for msg := range tasks {
				p.handle(workerID, msg)
			}
			log.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}

	func() {
		defer close(tasks)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case tasks <- msg:
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()

	wg.Wait()
}

func (p *Pool) handle(workerID int, msg amqp.Delivery) {
	event, err := rabbitmq.DecodeIssueCreated(msg.Body)
	if err != nil {
		log.Printf("Worker %d: discarding message: %v", workerID, err)
		_ = msg.Nack(false, false)
		return
	}

	log.Printf("Worker %d processing issue %s", workerID, event.IssueID)
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	_, err = p.handler.ProcessIssue(ctx, event)
	cancel()

	if err != nil {
		// one redelivery, then drop
		log.Printf("Worker %d: failed to process issue %s: %v", workerID, event.IssueID, err)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}
	_ = msg.Ack(false)
}
