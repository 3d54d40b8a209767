package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

func fixAt(sec int) session.FixReceived {
	at := time.Date(2026, 10, 19, 8, 0, sec, 0, time.UTC)
	return session.FixReceived{Fix: model.Fix{CapturedAt: at}, At: at}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))
		ctx := context.Background()

		Convey("When it is empty", func() {
			So(q.Len(ctx), ShouldEqual, 0)
			So(q.IsClosed(), ShouldBeFalse)
		})

		Convey("When events are enqueued and dequeued", func() {
			So(q.Enqueue(ctx, fixAt(1)), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)

			out := q.Dequeue(ctx)
			ev := <-out

			Convey("Then they come out in order", func() {
				So(ev.Time().Second(), ShouldEqual, 1)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, fixAt(1)), ShouldBeTrue)
			So(q.Enqueue(ctx, fixAt(2)), ShouldBeTrue)

			Convey("Then Enqueue drops without blocking", func() {
				So(q.Enqueue(ctx, fixAt(3)), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("Then EnqueueWait blocks until the context ends", func() {
				wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
				defer cancel()
				err := q.EnqueueWait(wctx, session.SignalLost{})
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})

			Convey("Then EnqueueWait proceeds once a consumer makes room", func() {
				out := q.Dequeue(ctx)
				errCh := make(chan error, 1)
				go func() { errCh <- q.EnqueueWait(ctx, session.SignalLost{}) }()

				var got []session.Event
				for i := 0; i < 3; i++ {
					got = append(got, <-out)
				}
				So(<-errCh, ShouldBeNil)
				_, isLoss := got[2].(session.SignalLost)
				So(isLoss, ShouldBeTrue)
			})

			Convey("Then Close wakes a blocked EnqueueWait", func() {
				errCh := make(chan error, 1)
				go func() { errCh <- q.EnqueueWait(ctx, session.SignalLost{}) }()
				time.Sleep(10 * time.Millisecond)
				So(q.Close(), ShouldBeNil)
				So(errors.Is(<-errCh, ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, fixAt(1)), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then new events are refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, fixAt(2)), ShouldBeFalse)
				So(errors.Is(q.EnqueueWait(ctx, fixAt(2)), ErrClosed), ShouldBeTrue)
				So(q.Close(), ShouldBeNil)
			})

			Convey("Then queued events drain before the channel closes", func() {
				out := q.Dequeue(ctx)
				ev, ok := <-out
				So(ok, ShouldBeTrue)
				So(ev.Time().Second(), ShouldEqual, 1)
				_, ok = <-out
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestInMemoryQueueConcurrentProducers(t *testing.T) {
	Convey("Given several producers and one consumer", t, func() {
		q := NewInMemoryQueue(WithCapacity(16))
		ctx := context.Background()
		const producers, perProducer = 8, 50

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					_ = q.EnqueueWait(ctx, fixAt(i%60))
				}
			}()
		}

		out := q.Dequeue(ctx)
		received := 0
		done := make(chan struct{})
		go func() {
			for range out {
				received++
			}
			close(done)
		}()

		wg.Wait()
		So(q.Close(), ShouldBeNil)
		<-done

		Convey("Then every blocking enqueue is delivered", func() {
			So(received, ShouldEqual, producers*perProducer)
		})
	})
}
