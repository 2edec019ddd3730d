package timing

import (
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("EventQueueImpl", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *EventQueueImpl
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pop in order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			event := NewMockEvent(mockCtrl)
			event.EXPECT().
				Time().
				Return(time.Duration(rand.Int63n(int64(time.Hour)))).
				AnyTimes()
			queue.Push(event)
		}

		now := time.Duration(-1)
		for i := 0; i < numEvents; i++ {
			event := queue.Pop()
			Expect(event.Time() >= now).To(BeTrue())
			now = event.Time()
		}

		Expect(queue.Len()).To(Equal(0))
	})

	It("should keep push order for events at the same time", func() {
		events := make([]*MockEvent, 10)
		for i := range events {
			events[i] = NewMockEvent(mockCtrl)
			events[i].EXPECT().Time().Return(time.Second).AnyTimes()
			queue.Push(events[i])
		}

		for i := range events {
			Expect(queue.Peek()).To(BeIdenticalTo(events[i]))
			Expect(queue.Pop()).To(BeIdenticalTo(events[i]))
		}
	})
})
