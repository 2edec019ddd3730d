package field

import (
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/fieldsync/hooking"
	"github.com/sarchlab/fieldsync/timing"
)

type commitCall struct {
	identity int
	value    string
	at       time.Duration
}

var _ = Describe("Controller", func() {
	var (
		mockCtrl  *gomock.Controller
		engine    *timing.SerialEngine
		committer *MockCommitter[int]
		c         *Controller[int]
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		committer = NewMockCommitter[int](mockCtrl)
		c = MakeBuilder[int]().
			WithName("Notes").
			WithScheduler(engine).
			WithCommitter(committer).
			Build(1, "a")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start with the source value", func() {
		Expect(c.Value()).To(Equal("a"))
		Expect(c.Source()).To(Equal("a"))
		Expect(c.Identity()).To(Equal(1))
		Expect(c.State()).To(Equal(StateIdle))
		Expect(c.Quiescence()).To(Equal(DefaultQuiescence))
	})

	It("should commit the last edit of a burst once", func() {
		committer.EXPECT().Commit(1, "abc").Times(1)

		c.Edit("ab")
		c.Edit("abc")
		Expect(c.Pending()).To(BeTrue())
		Expect(c.Value()).To(Equal("abc"))

		Expect(engine.Advance(time.Second)).To(Succeed())

		Expect(c.State()).To(Equal(StateIdle))
		Expect(c.LastCommitted()).To(Equal("abc"))
		Expect(engine.Run()).To(Succeed())
	})

	It("should commit at burst end plus the quiescence window", func() {
		var calls []commitCall
		c = MakeBuilder[int]().
			WithScheduler(engine).
			WithCommitFunc(func(identity int, value string) {
				calls = append(calls, commitCall{identity, value, engine.Now()})
			}).
			Build(1, "")

		for i, v := range []string{"h", "he", "hel", "hell", "hello"} {
			Expect(engine.RunUntil(time.Duration(i) * 300 * time.Millisecond)).
				To(Succeed())
			c.Edit(v)
		}

		Expect(engine.RunUntil(2199 * time.Millisecond)).To(Succeed())
		Expect(calls).To(BeEmpty())

		Expect(engine.Run()).To(Succeed())
		Expect(calls).To(Equal([]commitCall{{1, "hello", 2200 * time.Millisecond}}))
	})

	It("should commit immediately on exit and never fire the timer", func() {
		committer.EXPECT().Commit(1, "ab").Times(1)

		c.Edit("ab")
		Expect(c.Exit()).To(BeTrue())
		Expect(c.State()).To(Equal(StateIdle))

		Expect(engine.Advance(time.Second)).To(Succeed())
		Expect(engine.Run()).To(Succeed())
	})

	It("should not commit on exit when nothing diverged", func() {
		Expect(c.Exit()).To(BeFalse())
		Expect(engine.Run()).To(Succeed())
	})

	It("should not commit on exit when edits returned to the source", func() {
		c.Edit("ab")
		c.Edit("a")

		Expect(c.Exit()).To(BeFalse())
		Expect(engine.Run()).To(Succeed())
	})

	It("should drop the pending commit when the identity changes", func() {
		c.Edit("ab")
		c.SetSource(2, "z")

		Expect(engine.Advance(time.Second)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(c.Value()).To(Equal("z"))
		Expect(c.Source()).To(Equal("z"))
		Expect(c.Identity()).To(Equal(2))
		Expect(c.State()).To(Equal(StateIdle))
	})

	It("should drop the pending commit when the same identity gets a new source", func() {
		c.Edit("ab")
		c.SetSource(1, "remote")

		Expect(engine.Run()).To(Succeed())
		Expect(c.Value()).To(Equal("remote"))
	})

	It("should commit edits made after a rebind to the new identity", func() {
		committer.EXPECT().Commit(2, "zz")

		c.Edit("ab")
		c.SetSource(2, "z")
		c.Edit("zz")

		Expect(engine.Run()).To(Succeed())
	})

	It("should stay silent after dispose", func() {
		c.Edit("ab")
		c.Dispose()

		Expect(engine.Advance(2 * time.Second)).To(Succeed())

		c.Edit("abc")
		c.SetSource(3, "q")
		Expect(c.Exit()).To(BeFalse())
		c.Dispose()

		Expect(engine.Run()).To(Succeed())
		Expect(c.State()).To(Equal(StateDisposed))
		Expect(c.Value()).To(Equal("ab"))
	})

	It("should commit again on exit when the source was not re-supplied", func() {
		first := committer.EXPECT().Commit(1, "ab")
		committer.EXPECT().Commit(1, "ab").After(first)

		c.Edit("ab")
		Expect(engine.Run()).To(Succeed())

		Expect(c.Exit()).To(BeTrue())
	})

	It("should not commit on exit after the commit was acknowledged", func() {
		committer.EXPECT().Commit(1, "ab").Do(func(identity int, value string) {
			Expect(c.Acknowledge(identity, value)).To(BeTrue())
		})

		c.Edit("ab")
		Expect(engine.Run()).To(Succeed())

		Expect(c.Source()).To(Equal("ab"))
		Expect(c.Exit()).To(BeFalse())
	})

	It("should keep pending edits when an acknowledgement arrives", func() {
		committer.EXPECT().Commit(1, "abc")

		c.Edit("ab")
		Expect(c.Acknowledge(1, "ab")).To(BeTrue())
		c.Edit("abc")
		Expect(c.Acknowledge(1, "ab")).To(BeTrue())

		Expect(c.Pending()).To(BeTrue())
		Expect(c.Value()).To(Equal("abc"))
		Expect(engine.Run()).To(Succeed())
	})

	It("should ignore acknowledgements for another identity", func() {
		Expect(c.Acknowledge(7, "x")).To(BeFalse())
		Expect(c.Source()).To(Equal("a"))
	})

	It("should normalize source values", func() {
		c = MakeBuilder[int]().
			WithScheduler(engine).
			WithNormalizer(strings.ToUpper).
			Build(1, "a")
		Expect(c.Value()).To(Equal("A"))

		c.SetSource(2, "b")
		Expect(c.Value()).To(Equal("B"))
		Expect(c.Source()).To(Equal("B"))
	})

	It("should panic on a non-positive quiescence window", func() {
		Expect(func() {
			MakeBuilder[int]().WithQuiescence(0).Build(1, "")
		}).To(Panic())
	})

	It("should report its state in a snapshot", func() {
		c.Edit("ab")

		s := c.Snapshot()
		Expect(s).To(Equal(Snapshot{
			Name:       "Notes",
			Identity:   "1",
			Value:      "ab",
			Source:     "a",
			State:      "pending-commit",
			Quiescence: time.Second,
		}))

		c.SetSource(2, "z")
	})

	Context("hooks", func() {
		var positions []string
		var records []CommitRecord

		BeforeEach(func() {
			positions = nil
			records = nil
			c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				Expect(ctx.Domain).To(BeIdenticalTo(c))
				positions = append(positions, ctx.Pos.Name)
				if r, ok := ctx.Item.(CommitRecord); ok {
					records = append(records, r)
				}
			}))
		})

		It("should report edits, schedules and commits", func() {
			committer.EXPECT().Commit(1, "ab")

			c.Edit("ab")
			Expect(engine.Run()).To(Succeed())

			Expect(positions).To(Equal(
				[]string{"FieldEdit", "FieldSchedule", "FieldCommit"}))
			Expect(records).To(Equal([]CommitRecord{
				{Field: "Notes", Identity: 1, Value: "ab", Reason: ReasonQuiescence, Time: time.Second},
				{Field: "Notes", Identity: 1, Value: "ab", Reason: ReasonQuiescence, Time: time.Second},
			}))
		})

		It("should report exits with their reason", func() {
			committer.EXPECT().Commit(1, "ab")

			c.Edit("ab")
			c.Exit()

			Expect(positions).To(Equal(
				[]string{"FieldEdit", "FieldSchedule", "FieldCommit", "FieldExit"}))
			Expect(records[2].Reason).To(Equal(ReasonExit))
			Expect(records[2].Time).To(Equal(time.Duration(0)))
		})

		It("should report discarded commits", func() {
			c.Edit("ab")
			c.SetSource(2, "z")
			c.Edit("zz")
			c.Dispose()

			Expect(positions).To(Equal([]string{
				"FieldEdit", "FieldSchedule",
				"FieldDiscard", "FieldResync",
				"FieldEdit", "FieldSchedule",
				"FieldDiscard", "FieldDispose",
			}))
			Expect(records[1]).To(Equal(CommitRecord{
				Field: "Notes", Identity: 1, Value: "ab",
			}))
			Expect(records[2]).To(Equal(CommitRecord{
				Field: "Notes", Identity: 2, Value: "z",
			}))
			Expect(records[4].Value).To(Equal("zz"))
		})
	})
})

var _ = Describe("Controller timer ownership", func() {
	var (
		mockCtrl  *gomock.Controller
		scheduler *MockScheduler
		committer *MockCommitter[string]
		c         *Controller[string]
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		scheduler = NewMockScheduler(mockCtrl)
		scheduler.EXPECT().Now().Return(time.Duration(0)).AnyTimes()
		committer = NewMockCommitter[string](mockCtrl)
		c = MakeBuilder[string]().
			WithQuiescence(500 * time.Millisecond).
			WithScheduler(scheduler).
			WithCommitter(committer).
			Build("p", "")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should stop the previous timer before scheduling a new one", func() {
		timer1 := NewMockTimer(mockCtrl)
		timer2 := NewMockTimer(mockCtrl)

		first := scheduler.EXPECT().
			AfterFunc(500*time.Millisecond, gomock.Any()).
			Return(timer1)
		stop := timer1.EXPECT().Stop().Return(true).After(first)
		scheduler.EXPECT().
			AfterFunc(500*time.Millisecond, gomock.Any()).
			Return(timer2).
			After(stop)

		c.Edit("x")
		c.Edit("xy")
	})

	It("should ignore a timer that fired after it was superseded", func() {
		var callbacks []func()
		scheduler.EXPECT().
			AfterFunc(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ time.Duration, f func()) timing.Timer {
				callbacks = append(callbacks, f)
				timer := NewMockTimer(mockCtrl)
				timer.EXPECT().Stop().Return(false).AnyTimes()

				return timer
			}).
			Times(2)
		committer.EXPECT().Commit("p", "xy").Times(1)

		c.Edit("x")
		c.Edit("xy")

		callbacks[0]()
		callbacks[1]()
		callbacks[1]()
	})

	It("should ignore a timer that fired after exit", func() {
		var callback func()
		timer := NewMockTimer(mockCtrl)
		scheduler.EXPECT().
			AfterFunc(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ time.Duration, f func()) timing.Timer {
				callback = f
				return timer
			})
		timer.EXPECT().Stop().Return(false)
		committer.EXPECT().Commit("p", "x").Times(1)

		c.Edit("x")
		c.Exit()
		callback()
	})

	It("should cancel the timer on dispose", func() {
		timer := NewMockTimer(mockCtrl)
		scheduler.EXPECT().AfterFunc(gomock.Any(), gomock.Any()).Return(timer)
		timer.EXPECT().Stop().Return(true)

		c.Edit("x")
		c.Dispose()
	})
})

var _ = Describe("Controller with interface identities", func() {
	type call struct {
		identity any
		value    string
	}

	var (
		engine  *timing.SerialEngine
		commits []call
		c       *Controller[any]
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		commits = nil
		c = MakeBuilder[any]().
			WithScheduler(engine).
			WithCommitFunc(func(identity any, value string) {
				commits = append(commits, call{identity, value})
			}).
			Build(nil, "a")
	})

	It("should commit for a nil identity after the quiescence window", func() {
		c.Edit("ab")
		Expect(engine.Run()).To(Succeed())

		Expect(commits).To(Equal([]call{{nil, "ab"}}))
	})

	It("should commit for a nil identity on exit", func() {
		c.Edit("ab")
		Expect(c.Exit()).To(BeTrue())

		Expect(commits).To(Equal([]call{{nil, "ab"}}))
	})

	It("should pass non-nil identities through unchanged", func() {
		c.SetSource("p1", "x")
		c.Edit("xy")
		Expect(engine.Run()).To(Succeed())

		Expect(commits).To(Equal([]call{{"p1", "xy"}}))
	})
})

var _ = Describe("Controller on a wall clock", func() {
	It("should commit after the quiescence window", func() {
		var lock sync.Mutex
		var committed []string

		c := MakeBuilder[int]().
			WithQuiescence(10 * time.Millisecond).
			WithScheduler(timing.NewWallClock()).
			WithCommitFunc(func(_ int, value string) {
				lock.Lock()
				defer lock.Unlock()
				committed = append(committed, value)
			}).
			Build(1, "")

		c.Edit("a")
		c.Edit("ab")

		Eventually(func() []string {
			lock.Lock()
			defer lock.Unlock()
			return append([]string(nil), committed...)
		}).Should(Equal([]string{"ab"}))
		Expect(c.State()).To(Equal(StateIdle))
	})
	It("should not return from dispose while a commit is being delivered", func() {
		started := make(chan struct{})
		release := make(chan struct{})
		disposed := make(chan struct{})

		c := MakeBuilder[int]().
			WithQuiescence(10 * time.Millisecond).
			WithScheduler(timing.NewWallClock()).
			WithCommitFunc(func(int, string) {
				close(started)
				<-release
			}).
			Build(1, "")

		c.Edit("a")
		Eventually(started).Should(BeClosed())

		go func() {
			c.Dispose()
			close(disposed)
		}()

		Consistently(disposed, 50*time.Millisecond).ShouldNot(BeClosed())

		close(release)
		Eventually(disposed).Should(BeClosed())
		Expect(c.State()).To(Equal(StateDisposed))
	})
})
