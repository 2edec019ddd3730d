package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/fieldsync/field"
	"github.com/sarchlab/fieldsync/timing"
)

var _ = Describe("Monitor", func() {
	var (
		mockCtrl *gomock.Controller
		m        *Monitor
		engine   *timing.SerialEngine
		handler  http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()

		m = NewMonitor()
		m.RegisterTimeTeller(engine)
		handler = m.Handler()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report the current time in seconds", func() {
		Expect(engine.Advance(1500 * time.Millisecond)).To(Succeed())

		rec := get("/api/now")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal(`{"now":1.5000000000}`))
	})

	It("should list registered fields by name", func() {
		for _, name := range []string{"Title", "Notes"} {
			f := NewMockSnapshotter(mockCtrl)
			f.EXPECT().Snapshot().Return(field.Snapshot{Name: name}).AnyTimes()
			m.RegisterField(f)
		}

		rec := get("/api/list_fields")

		var names []string
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"Notes", "Title"}))
	})

	It("should stop listing unregistered fields", func() {
		f := NewMockSnapshotter(mockCtrl)
		f.EXPECT().Snapshot().Return(field.Snapshot{Name: "Notes"}).AnyTimes()
		m.RegisterField(f)
		m.UnregisterField("Notes")

		Expect(get("/api/list_fields").Body.String()).To(Equal("[]"))
	})

	It("should panic on duplicated names", func() {
		f := NewMockSnapshotter(mockCtrl)
		f.EXPECT().Snapshot().Return(field.Snapshot{Name: "Notes"}).AnyTimes()
		m.RegisterField(f)

		Expect(func() { m.RegisterField(f) }).To(Panic())
	})

	It("should serialize a live field", func() {
		fld := field.MakeBuilder[int]().
			WithName("Notes").
			WithScheduler(engine).
			Build(3, "a")
		m.RegisterField(fld)

		fld.Edit("pending-text")

		rec := get("/api/field/Notes")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("pending-text"))
		Expect(rec.Body.String()).To(ContainSubstring("pending-commit"))
	})

	It("should return 404 for unknown fields", func() {
		rec := get("/api/field/Nope")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(Equal("Field not found"))
	})

	It("should pause and continue a pausable clock", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))

		fired := false
		engine.AfterFunc(time.Second, func() { fired = true })
		Expect(engine.Run()).To(Succeed())
		Expect(fired).To(BeTrue())
	})

	It("should refuse to pause a wall clock", func() {
		m.RegisterTimeTeller(timing.NewWallClock())

		Expect(get("/api/pause").Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should report process resources", func() {
		rec := get("/api/resource")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp resourceRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should replace forbidden port numbers", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(Equal(0))
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should refuse to open a browser before starting", func() {
		Expect(m.OpenInBrowser()).To(MatchError(ErrNotStarted))
	})

	It("should serve over TCP", func() {
		port, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())
		Expect(port).To(BeNumerically(">", 0))

		defer func() {
			Expect(m.StopServer(context.Background())).To(Succeed())
		}()

		rsp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/now", port))
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal(`{"now":0.0000000000}`))
	})
})
