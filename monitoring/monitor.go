// Package monitoring serves the state of live fields over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/fieldsync/field"
	"github.com/sarchlab/fieldsync/timing"
)

// ErrNotStarted is returned by operations that need a running server.
var ErrNotStarted = errors.New("monitor server not started")

// A Snapshotter can report the state of a field.
type Snapshotter interface {
	Snapshot() field.Snapshot
}

type pausable interface {
	Pause()
	Continue()
}

// Monitor turns a set of fields into a web server so that they can be
// inspected while they are being edited.
type Monitor struct {
	timeTeller timing.TimeTeller
	portNumber int
	logger     *slog.Logger

	lock   sync.Mutex
	fields map[string]Snapshotter
	server *http.Server
	port   int
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		fields: make(map[string]Snapshotter),
		logger: slog.Default(),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 other
// than 0 are not allowed and are replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warn("monitor port not allowed, using a random port",
			slog.Int("port", portNumber))

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(l *slog.Logger) *Monitor {
	m.logger = l
	return m
}

// RegisterTimeTeller registers the clock the fields are driven by. If it can
// be paused, the pause and continue endpoints control it.
func (m *Monitor) RegisterTimeTeller(t timing.TimeTeller) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.timeTeller = t
}

// RegisterField registers a field to be monitored. Names must be unique.
func (m *Monitor) RegisterField(f Snapshotter) {
	name := f.Snapshot().Name

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, found := m.fields[name]; found {
		log.Panicf("field %s already registered", name)
	}

	m.fields[name] = f
}

// UnregisterField stops monitoring the field with the given name.
func (m *Monitor) UnregisterField(name string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.fields, name)
}

// Handler returns the router serving the monitoring API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.continueClock)
	r.HandleFunc("/api/list_fields", m.listFields)
	r.HandleFunc("/api/field/{name}", m.fieldDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() (int, error) {
	addr := ":" + strconv.Itoa(m.portNumber)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("starting monitor on %s: %w", addr, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	server := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.lock.Lock()
	m.server = server
	m.port = port
	m.lock.Unlock()

	fmt.Fprintf(os.Stderr, "Monitoring fields with http://localhost:%d\n", port)

	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitor server stopped", slog.Any("error", err))
		}
	}()

	return port, nil
}

// OpenInBrowser opens the monitor in the default browser.
func (m *Monitor) OpenInBrowser() error {
	m.lock.Lock()
	port := m.port
	m.lock.Unlock()

	if port == 0 {
		return ErrNotStarted
	}

	return browser.OpenURL(fmt.Sprintf("http://localhost:%d/api/list_fields", port))
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	m.lock.Lock()
	server := m.server
	m.server = nil
	m.port = 0
	m.lock.Unlock()

	if server == nil {
		return nil
	}

	return server.Shutdown(ctx)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	tt := m.timeTeller
	m.lock.Unlock()

	var now time.Duration
	if tt != nil {
		now = tt.Now()
	}

	fmt.Fprintf(w, "{\"now\":%.10f}", now.Seconds())
}

func (m *Monitor) pausableOr405(w http.ResponseWriter) pausable {
	m.lock.Lock()
	p, ok := m.timeTeller.(pausable)
	m.lock.Unlock()

	if !ok {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil
	}

	return p
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	if p := m.pausableOr405(w); p != nil {
		p.Pause()
	}
}

func (m *Monitor) continueClock(w http.ResponseWriter, _ *http.Request) {
	if p := m.pausableOr405(w); p != nil {
		p.Continue()
	}
}

func (m *Monitor) listFields(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	m.lock.Unlock()

	sort.Strings(names)

	m.writeJSON(w, names)
}

func (m *Monitor) findFieldOr404(w http.ResponseWriter, name string) Snapshotter {
	m.lock.Lock()
	f := m.fields[name]
	m.lock.Unlock()

	if f == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Field not found"))
		m.logOnErr(err)
	}

	return f
}

// fieldDetails serializes a snapshot of the field. The optional path query
// selects a nested entry, e.g. ?path=Value.
func (m *Monitor) fieldDetails(w http.ResponseWriter, r *http.Request) {
	f := m.findFieldOr404(w, mux.Vars(r)["name"])
	if f == nil {
		return
	}

	snapshot := f.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(1)

	if path := r.URL.Query().Get("path"); path != "" {
		if err := serializer.SetEntryPoint(strings.Split(path, ".")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	m.logOnErr(serializer.Serialize(w))
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	m.logOnErr(err)
}

func (m *Monitor) logOnErr(err error) {
	if err != nil {
		m.logger.Warn("monitor response failed", slog.Any("error", err))
	}
}
