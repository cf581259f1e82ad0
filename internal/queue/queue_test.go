package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type QueueTestSuite struct {
	suite.Suite
	logger *logrus.Logger
	q      *Queue
}

func (s *QueueTestSuite) SetupSuite() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.PanicLevel)
}

func (s *QueueTestSuite) SetupTest() {
	s.q = New(s.logger)
}

func (s *QueueTestSuite) TearDownTest() {
	s.q.Close(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.NoError(s.q.WaitIdle(ctx), "queue MUST go idle after the test")
}

func (s *QueueTestSuite) waitIdle() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(s.q.WaitIdle(ctx))
}

func (s *QueueTestSuite) TestSingleFlightFIFO() {
	// GOAL: Verify N+M concurrently submitted tasks run exactly once each, one at a time, in submission order
	//
	// TEST SCENARIO: N "write" and M "notify" producers race Enqueue → every task records its seq
	// → execution order equals seq order → max concurrency is 1
	const writers, notifiers, perProducer = 8, 8, 25

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		mu        sync.Mutex
		executed  []uint64
		handles   = make(chan *Pending, (writers+notifiers)*perProducer)
		wg        sync.WaitGroup
	)

	task := func(seq *uint64) Task {
		return func(context.Context) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(50 * time.Microsecond)
			mu.Lock()
			executed = append(executed, *seq)
			mu.Unlock()
			active.Add(-1)
			return nil
		}
	}

	producer := func(kind string) {
		defer wg.Done()
		for i := 0; i < perProducer; i++ {
			seq := new(uint64)
			p, err := s.q.Enqueue(fmt.Sprintf("%s-%d", kind, i), task(seq))
			s.Require().NoError(err)
			*seq = p.Seq()
			handles <- p
		}
	}

	// Hold the worker until every producer has finished so seq assignment cannot race execution.
	gate := make(chan struct{})
	_, err := s.q.Enqueue("gate", func(context.Context) error { <-gate; return nil })
	s.Require().NoError(err)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go producer("write")
	}
	for i := 0; i < notifiers; i++ {
		wg.Add(1)
		go producer("notify")
	}
	wg.Wait()
	close(gate)
	close(handles)

	for p := range handles {
		s.Require().NoError(p.Wait(context.Background()))
	}
	s.waitIdle()

	total := (writers + notifiers) * perProducer
	s.Require().Len(executed, total, "every task MUST run exactly once")
	for i := 1; i < len(executed); i++ {
		s.Less(executed[i-1], executed[i], "tasks MUST run in submission order")
	}
	s.Equal(int32(1), maxActive.Load(), "no two tasks MAY overlap")

	st := s.q.Stats()
	s.Equal(uint64(total+1), st.Enqueued)
	s.Equal(uint64(total+1), st.Completed)
	s.False(st.Running, "drain worker MUST exit when the queue is empty")
}

func (s *QueueTestSuite) TestFailureDoesNotStopQueue() {
	boom := errors.New("write failed")
	first, err := s.q.Enqueue("fails", func(context.Context) error { return boom })
	s.Require().NoError(err)

	ran := false
	second, err := s.q.Enqueue("next", func(context.Context) error { ran = true; return nil })
	s.Require().NoError(err)

	s.ErrorIs(first.Wait(context.Background()), boom, "failure MUST be reported to the awaiting caller")
	s.NoError(second.Wait(context.Background()))
	s.True(ran, "subsequent task MUST still run")
	s.Equal(uint64(1), s.q.Stats().Failed)
}

func (s *QueueTestSuite) TestPanicIsReportedAsError() {
	p, err := s.q.Enqueue("panics", func(context.Context) error { panic("nil handle") })
	s.Require().NoError(err)

	err = p.Wait(context.Background())
	s.ErrorIs(err, ErrTaskPanicked)
	s.ErrorContains(err, "nil handle")

	s.NoError(s.q.Do(context.Background(), "after", func(context.Context) error { return nil }),
		"queue MUST keep running after a panic")
}

func (s *QueueTestSuite) TestCloseCancelsQueuedButNotRunning() {
	// GOAL: Verify Close completes not-started tasks with the cause and leaves the running one alone
	//
	// TEST SCENARIO: block a running task → queue two more → Close(cause) → queued fail with cause
	// → release running task → it completes normally
	started := make(chan struct{})
	release := make(chan struct{})
	var ctxErr error

	running, err := s.q.Enqueue("running", func(ctx context.Context) error {
		close(started)
		<-release
		ctxErr = ctx.Err()
		return nil
	})
	s.Require().NoError(err)
	<-started

	queued1, err := s.q.Enqueue("queued-1", func(context.Context) error { s.Fail("MUST NOT run"); return nil })
	s.Require().NoError(err)
	queued2, err := s.q.Enqueue("queued-2", func(context.Context) error { s.Fail("MUST NOT run"); return nil })
	s.Require().NoError(err)

	cause := errors.New("connection lost")
	s.q.Close(cause)
	s.q.Close(errors.New("second close is ignored"))

	s.ErrorIs(queued1.Wait(context.Background()), cause)
	s.ErrorIs(queued2.Wait(context.Background()), cause)

	select {
	case <-running.Done():
		s.Fail("running task MUST NOT be interrupted by Close")
	default:
	}

	close(release)
	s.NoError(running.Wait(context.Background()))
	s.NoError(ctxErr, "running task context MUST NOT be cancelled by Close")

	_, err = s.q.Enqueue("late", func(context.Context) error { return nil })
	s.ErrorIs(err, ErrClosed)
	s.True(s.q.Closed())
	s.Equal(uint64(2), s.q.Stats().Cancelled)
}

func (s *QueueTestSuite) TestCloseWithoutCause() {
	block := make(chan struct{})
	defer close(block)
	_, err := s.q.Enqueue("blocker", func(context.Context) error { <-block; return nil })
	s.Require().NoError(err)
	p, err := s.q.Enqueue("queued", func(context.Context) error { return nil })
	s.Require().NoError(err)

	s.q.Close(nil)
	s.ErrorIs(p.Wait(context.Background()), ErrClosed)
	s.ErrorIs(p.Err(), ErrClosed)
}

func (s *QueueTestSuite) TestWaitHonoursContext() {
	block := make(chan struct{})
	defer close(block)
	p, err := s.q.Enqueue("slow", func(context.Context) error { <-block; return nil })
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.ErrorIs(p.Wait(ctx), context.DeadlineExceeded)
	s.NoError(p.Err(), "Err MUST be nil before completion")
	s.Equal("slow", p.Name())
}

func (s *QueueTestSuite) TestEnqueueNeverBlocks() {
	block := make(chan struct{})
	_, err := s.q.Enqueue("blocker", func(context.Context) error { <-block; return nil })
	s.Require().NoError(err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_, _ = s.q.Enqueue("burst", func(context.Context) error { return nil })
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("Enqueue MUST NOT block while a task is running")
	}
	s.Equal(1000, s.q.Stats().Queued)
	close(block)
	s.waitIdle()
}

func (s *QueueTestSuite) TestTaskTimeout() {
	q := New(s.logger, WithTaskTimeout(10*time.Millisecond), WithName("timeout-queue"))
	defer q.Close(nil)

	err := q.Do(context.Background(), "hangs", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *QueueTestSuite) TestNilTask() {
	_, err := s.q.Enqueue("nil", nil)
	s.Error(err)
}

func (s *QueueTestSuite) TestRestartsAfterIdle() {
	s.NoError(s.q.Do(context.Background(), "one", func(context.Context) error { return nil }))
	s.waitIdle()
	s.False(s.q.Stats().Running)

	s.NoError(s.q.Do(context.Background(), "two", func(context.Context) error { return nil }),
		"an idle queue MUST start a new worker on demand")
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}
