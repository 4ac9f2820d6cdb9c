package atomic_float

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicUpdate(t *testing.T) {
	Convey("When AtomicUpdate is called", t, func() {
		Convey("When multiple writers add to the float value concurrently", func() {
			af := NewAtomicFloat64(0.0)
			num_ops := 3000
			num_writers := 200

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers)
			adder := func() {
				<-start
				for i := 0; i < num_ops; i++ {
					af.AtomicUpdate(func(old float64) float64 { return old + 1.0 })
				}
				wg.Done()
			}

			for i := 0; i < num_writers; i++ {
				go adder()
			}

			// Wait for goroutines to begin
			time.Sleep(time.Millisecond * 10)
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, float64(num_ops*num_writers))
		})

		Convey("When multiple writers increment and decrement the float value concurrently", func() {
			af := NewAtomicFloat64(0.0)
			num_ops := 3000
			num_writers := 200

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers * 2)
			stepper := func(delta float64) {
				<-start
				for i := 0; i < num_ops; i++ {
					af.AtomicUpdate(func(old float64) float64 { return old + delta })
				}
				wg.Done()
			}

			for i := 0; i < num_writers; i++ {
				go stepper(1.0)
				go stepper(-1.0)
			}

			time.Sleep(time.Millisecond * 10)
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, 0.0)
		})

		Convey("The returned value is the stored value", func() {
			af := NewAtomicFloat64(2.0)
			got := af.AtomicUpdate(func(old float64) float64 { return old * 3 })
			So(got, ShouldEqual, 6.0)
			So(af.AtomicRead(), ShouldEqual, 6.0)
		})
	})

	Convey("When AtomicSet is called", t, func() {
		af := NewAtomicFloat64(-5.0)
		af.AtomicSet(1.25)
		So(af.AtomicRead(), ShouldEqual, 1.25)
	})
}
