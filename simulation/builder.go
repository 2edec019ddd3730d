package simulation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/fieldsync/datarecording"
	"github.com/sarchlab/fieldsync/field"
	"github.com/sarchlab/fieldsync/monitoring"
	"github.com/sarchlab/fieldsync/timing"
	"github.com/sarchlab/fieldsync/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	wallClock      bool
	monitorOn      bool
	monitorPort    int
	outputFileName string
	quiescence     time.Duration
	logger         *slog.Logger
}

// MakeBuilder creates a new builder. By default the simulation runs on a
// serial engine in virtual time, with monitoring on.
func MakeBuilder() Builder {
	return Builder{
		monitorOn:  true,
		quiescence: field.DefaultQuiescence,
	}
}

// WithWallClock makes fields debounce in real time.
func (b Builder) WithWallClock() Builder {
	b.wallClock = true
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithQuiescence sets the debounce window of the fields.
func (b Builder) WithQuiescence(d time.Duration) Builder {
	b.quiescence = d
	return b
}

// WithLogger sets the logger of the fields and of the activity log.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.quiescence <= 0 {
		panic("quiescence window must be positive")
	}
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	s := &Simulation{
		id:         xid.New().String(),
		quiescence: b.quiescence,
		logger:     b.logger,
		fields:     make(map[string]TrackedField),
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if b.wallClock {
		s.scheduler = timing.NewWallClock()
	} else {
		s.engine = timing.NewSerialEngine()
		s.engine.AcceptHook(timing.NewEventLogger(s.logger))
		s.scheduler = s.engine
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "fieldsync_sim_" + s.id
	}

	recorder, err := datarecording.New(outputPath)
	if err != nil {
		return nil, fmt.Errorf("building simulation: %w", err)
	}

	s.dataRecorder = recorder

	s.tracer, err = tracing.NewCommitTracer(s.scheduler, recorder)
	if err != nil {
		recorder.Close()
		return nil, fmt.Errorf("building simulation: %w", err)
	}

	s.logHook = tracing.NewLogHook(s.logger)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithLogger(s.logger)
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitor.RegisterTimeTeller(s.scheduler)

		if _, err := s.monitor.StartServer(); err != nil {
			recorder.Close()
			return nil, fmt.Errorf("building simulation: %w", err)
		}
	}

	return s, nil
}
