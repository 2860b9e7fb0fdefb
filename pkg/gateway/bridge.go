package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/IELS2001/m16go/pkg/gateway/mqtt"
	"github.com/IELS2001/m16go/pkg/modem"
	"github.com/IELS2001/m16go/pkg/store"
)

// sampleHistoryLen caps the sample set list kept in the store.
const sampleHistoryLen = 100

// storeTimeout bounds each store write issued off the bridge loop.
const storeTimeout = 5 * time.Second

type command struct {
	msg    CommandMsg
	respCh chan CommandResult
}

// Bridge owns the modem session and fans its traffic out: decoded
// frames, completed sample sets and periodic diagnostic reports go to
// the queue, the store and live subscribers; commands come back in
// over the queue and the control API. Every modem operation runs on
// the bridge loop, which keeps the session single-owner.
type Bridge struct {
	ID      string
	Session *modem.Session
	Queue   *mqtt.Queue  // optional
	Store   *store.Store // optional
	Metrics *Metrics

	Collector *Collector
	Limiter   *rate.Limiter

	ReportInterval time.Duration
	PollInterval   time.Duration
	SetupChannel   int
	SetupPower     int

	cmdCh chan command

	feedLock sync.Mutex
	feeds    map[int]chan FrameMsg
	feedSeq  int

	lastLock     sync.RWMutex
	lastReport   *modem.Report
	lastReportAt time.Time

	pendingUnits atomic.Int64
}

// NewBridge assembles a bridge. queue and st may be nil, which
// disables the corresponding outputs.
func NewBridge(cfg *Config, sess *modem.Session, queue *mqtt.Queue, st *store.Store) *Bridge {
	b := &Bridge{
		ID:             GatewayID(cfg.GatewayID),
		Session:        sess,
		Queue:          queue,
		Store:          st,
		Metrics:        NewMetrics(),
		ReportInterval: cfg.Report.Interval,
		PollInterval:   cfg.PollInterval,
		SetupChannel:   cfg.Modem.Channel,
		SetupPower:     cfg.Modem.Power,
		cmdCh:          make(chan command),
		feeds:          make(map[int]chan FrameMsg),
	}
	if b.PollInterval <= 0 {
		b.PollInterval = 250 * time.Millisecond
	}
	b.Collector = NewCollector(nil, b.onSampleSet)
	b.Collector.Password = cfg.Modem.Password
	if cfg.Collector.Deadline > 0 {
		b.Collector.Deadline = cfg.Collector.Deadline
	}
	if cfg.Pacing.Interval > 0 {
		burst := cfg.Pacing.Burst
		if burst < 1 {
			burst = 1
		}
		b.Limiter = rate.NewLimiter(rate.Every(cfg.Pacing.Interval), burst)
	}
	return b
}

// Name implements framework.Named.
func (b *Bridge) Name() string { return "bridge" }

// Run implements framework.Runnable. It applies the startup channel
// and power, then serves commands, drains inbound traffic and
// collects periodic reports until the context ends.
func (b *Bridge) Run(ctx context.Context) error {
	b.Collector.Reply = func(f modem.Frame) error {
		return b.send(ctx, f)
	}
	if b.Queue != nil {
		b.Queue.Sub(fmt.Sprintf(TopicCmd, b.ID), func(_ string, payload []byte) {
			var msg CommandMsg
			if err := json.Unmarshal(payload, &msg); err != nil {
				glog.Warningf("bad command payload: %v", err)
				return
			}
			// Execute blocks on the loop; keep the client callback free.
			go b.Execute(ctx, msg)
		})
	}
	if err := b.setup(ctx); err != nil {
		return err
	}

	poll := time.NewTicker(b.PollInterval)
	defer poll.Stop()
	var reportCh <-chan time.Time
	if b.ReportInterval > 0 {
		report := time.NewTicker(b.ReportInterval)
		defer report.Stop()
		reportCh = report.C
	}
	glog.Infof("gateway %s up", b.ID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-b.cmdCh:
			b.runCommand(ctx, cmd)
		case <-poll.C:
			b.drain()
		case <-reportCh:
			if _, err := b.collectReport(ctx); err != nil {
				glog.Errorf("report: %v", err)
			}
		}
	}
}

func (b *Bridge) setup(ctx context.Context) error {
	if b.SetupChannel > 0 {
		if err := b.Session.SetChannel(ctx, b.SetupChannel); err != nil {
			return fmt.Errorf("setup channel: %w", err)
		}
	}
	if b.SetupPower > 0 {
		if err := b.Session.SetPowerLevel(ctx, b.SetupPower); err != nil {
			return fmt.Errorf("setup power: %w", err)
		}
	}
	return nil
}

// Execute runs one command on the bridge loop and returns its result.
func (b *Bridge) Execute(ctx context.Context, msg CommandMsg) CommandResult {
	if msg.ID == "" {
		msg.ID = newEventID()
	}
	cmd := command{msg: msg, respCh: make(chan CommandResult, 1)}
	select {
	case b.cmdCh <- cmd:
	case <-ctx.Done():
		return CommandResult{ID: msg.ID, Op: msg.Op, Error: ctx.Err().Error(), Time: time.Now()}
	}
	select {
	case res := <-cmd.respCh:
		return res
	case <-ctx.Done():
		return CommandResult{ID: msg.ID, Op: msg.Op, Error: ctx.Err().Error(), Time: time.Now()}
	}
}

func (b *Bridge) runCommand(ctx context.Context, cmd command) {
	msg := cmd.msg
	res := CommandResult{ID: msg.ID, Op: msg.Op}
	var err error
	switch msg.Op {
	case OpSwitchMode:
		err = b.Session.SwitchOperationMode(ctx)
	case OpSetChannel:
		err = b.Session.SetChannel(ctx, msg.Channel)
	case OpSetPower:
		err = b.Session.SetPowerLevel(ctx, msg.Power)
	case OpSend:
		var c modem.Command
		if c, err = modem.ParseCommand(msg.Command); err == nil {
			err = b.send(ctx, modem.Frame{ID: msg.Unit, Command: c, Data: msg.Data})
		}
	case OpRequestReport:
		var r modem.Report
		if r, err = b.collectReport(ctx); err == nil {
			res.Report = &r
		}
	default:
		err = fmt.Errorf("unknown op %q", msg.Op)
	}
	result := "ok"
	if err != nil {
		result = "error"
		res.Error = err.Error()
	} else {
		res.OK = true
	}
	b.Metrics.Commands.WithLabelValues(msg.Op, result).Inc()
	res.Time = time.Now()
	cmd.respCh <- res
	b.publish(TopicCmdRes, res, false)
}

// send transmits one frame, paced to respect frame air time.
func (b *Bridge) send(ctx context.Context, f modem.Frame) error {
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := b.Session.Send(f); err != nil {
		return err
	}
	b.Metrics.FramesTx.Inc()
	return nil
}

// drain empties the receive side and routes every complete frame. A
// trailing odd byte is discarded with the flush; the next frame
// resynchronizes on the wire's 2-byte cadence.
func (b *Bridge) drain() {
	avail, err := b.Session.BufferedLen()
	if err != nil {
		glog.Errorf("buffered length: %v", err)
		return
	}
	if avail < 2 {
		return
	}
	buf := make([]byte, avail)
	n, err := b.Session.ReadAvailable(buf)
	if err != nil {
		glog.Errorf("drain: %v", err)
		return
	}
	b.Metrics.DrainBytes.Add(float64(n))
	for i := 0; i+1 < n; i += 2 {
		b.handleFrame(b.Session.Layout.DecodeBytes(buf[i : i+2]))
	}
	b.pendingUnits.Store(int64(b.Collector.Pending()))
}

func (b *Bridge) handleFrame(f modem.Frame) {
	b.Metrics.FramesRx.Inc()
	glog.V(1).Infof("rx %v", f)
	msg := FrameMsg{
		EventID:    newEventID(),
		Gateway:    b.ID,
		Time:       time.Now(),
		Unit:       f.ID,
		Command:    f.Command.String(),
		RawCommand: uint8(f.Command),
		Data:       f.Data,
	}
	b.publish(TopicFrames, msg, false)
	b.broadcast(msg)
	b.Collector.Feed(f)
}

// collectReport requests a report, records it as the latest, and fans
// it out.
func (b *Bridge) collectReport(ctx context.Context) (modem.Report, error) {
	start := time.Now()
	r, err := b.Session.RequestReport(ctx)
	b.Metrics.ReportDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		b.Metrics.ReportTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, modem.ErrReportTimeout):
		b.Metrics.ReportTotal.WithLabelValues("timeout").Inc()
	default:
		b.Metrics.ReportTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		return modem.Report{}, err
	}
	b.lastLock.Lock()
	b.lastReport, b.lastReportAt = &r, time.Now()
	b.lastLock.Unlock()

	msg := ReportMsg{EventID: newEventID(), Gateway: b.ID, Time: time.Now(), Report: r}
	b.publish(TopicReport, msg, true)
	b.withStore(func(ctx context.Context, st *store.Store) error {
		return st.PutJSON(ctx, b.key("report"), msg)
	})
	return r, nil
}

func (b *Bridge) onSampleSet(s SampleSet) {
	b.Metrics.SampleSets.Inc()
	glog.V(1).Infof("unit %d: %d readings", s.Unit, len(s.Readings))
	msg := SampleSetMsg{EventID: newEventID(), Gateway: b.ID, Time: time.Now(), SampleSet: s}
	b.publish(TopicSamples, msg, false)
	b.withStore(func(ctx context.Context, st *store.Store) error {
		if err := st.AppendJSON(ctx, b.key("samples"), msg, sampleHistoryLen); err != nil {
			return err
		}
		for _, r := range s.Readings {
			key := b.key(fmt.Sprintf("unit:%d:%s", s.Unit, r.Sensor))
			if err := st.PutJSON(ctx, key, r.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Status is a point-in-time view for the control API.
type Status struct {
	Gateway      string        `json:"gateway"`
	Layout       string        `json:"layout"`
	PendingUnits int           `json:"pendingUnits"`
	LastReport   *modem.Report `json:"lastReport,omitempty"`
	LastReportAt time.Time     `json:"lastReportAt"`
}

// Status reports the bridge state.
func (b *Bridge) Status() Status {
	b.lastLock.RLock()
	defer b.lastLock.RUnlock()
	s := Status{
		Gateway:      b.ID,
		Layout:       b.Session.Layout.String(),
		PendingUnits: int(b.pendingUnits.Load()),
		LastReportAt: b.lastReportAt,
	}
	if b.lastReport != nil {
		r := *b.lastReport
		s.LastReport = &r
	}
	return s
}

// SubscribeFrames registers a live frame listener and returns the
// feed with its cancel func. Slow listeners lose frames rather than
// stall the loop.
func (b *Bridge) SubscribeFrames() (<-chan FrameMsg, func()) {
	ch := make(chan FrameMsg, 16)
	b.feedLock.Lock()
	b.feedSeq++
	id := b.feedSeq
	b.feeds[id] = ch
	b.feedLock.Unlock()
	return ch, func() {
		b.feedLock.Lock()
		if _, ok := b.feeds[id]; ok {
			delete(b.feeds, id)
			close(ch)
		}
		b.feedLock.Unlock()
	}
}

func (b *Bridge) broadcast(msg FrameMsg) {
	b.feedLock.Lock()
	for _, ch := range b.feeds {
		select {
		case ch <- msg:
		default:
		}
	}
	b.feedLock.Unlock()
}

func (b *Bridge) publish(topicFmt string, v any, retain bool) {
	if b.Queue == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("marshal for %s: %v", topicFmt, err)
		return
	}
	b.Queue.PubWith(fmt.Sprintf(topicFmt, b.ID), data, 0, retain)
}

func (b *Bridge) withStore(fn func(context.Context, *store.Store) error) {
	if b.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := fn(ctx, b.Store); err != nil {
		glog.Errorf("store: %v", err)
	}
}

func (b *Bridge) key(suffix string) string {
	return fmt.Sprintf("m16:%s:%s", b.ID, suffix)
}
