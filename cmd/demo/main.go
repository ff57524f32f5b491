// Command demo runs a self-contained producer/consumer pair over a
// loopback WebSocket connection, exercising the interpolation engine
// against a simulated network link instead of a perfect one.
package main

import (
	"flag"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/snapshotinterp/pkg/config"
	"github.com/opd-ai/snapshotinterp/pkg/interpolation"
	"github.com/opd-ai/snapshotinterp/pkg/netsim"
	"github.com/opd-ai/snapshotinterp/pkg/worldstate"
)

var (
	logLevel     = flag.String("log-level", "", "log level (debug, info, warn, error); overrides config")
	netCondition = flag.String("net-condition", "", "simulated link condition (instant, good, fair, far, poor); overrides config")
	metricsAddr  = flag.String("metrics-addr", "", "address to serve Prometheus metrics on; overrides config")
	runDuration  = flag.Duration("duration", 0, "stop the demo after this long (0 runs forever)")
)

func main() {
	flag.Parse()

	if err := config.Load(); err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	cfg := config.Get()
	applyFlagOverrides(&cfg)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cond, ok := netsim.ParseCondition(cfg.NetCondition)
	if !ok {
		logrus.WithField("net_condition", cfg.NetCondition).Fatal("unrecognized net condition")
	}

	settings := cfg.ToSettings()

	logrus.WithFields(logrus.Fields{
		"period":        settings.Period,
		"buf_duration":  settings.BufDuration,
		"net_condition": cond,
		"metrics_addr":  cfg.MetricsAddr,
	}).Info("starting snapshot interpolation demo")

	remote, err := newRemoteServer(settings, cond)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start remote server")
	}
	defer remote.stop()

	buf := interpolation.NewBuffer[worldstate.WorldSnapshot](settings)
	playback := interpolation.NewPlayback[worldstate.WorldSnapshot](buf)

	collector := interpolation.NewCollector[worldstate.WorldSnapshot]("demo", playback, buf)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Error("metrics server stopped")
			}
		}()
		defer server.Close()
	}

	client, err := newLinkClient(remote.addr())
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to remote server")
	}
	defer client.close()

	stop := make(chan struct{})
	go client.receiveLoop(buf, stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *runDuration > 0 {
		deadline = time.After(*runDuration)
	}

	renderLoop(playback, buf, sigChan, deadline, stop)
}

func applyFlagOverrides(cfg *config.Config) {
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *netCondition != "" {
		cfg.NetCondition = *netCondition
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	config.Set(*cfg)
}

// renderLoop drives Playback.Step at a fixed local tick rate and logs the
// engine's debug signals once a second, matching the diagnostic readout of
// the engine this harness exercises.
func renderLoop(playback *interpolation.Playback[worldstate.WorldSnapshot], buf *interpolation.Buffer[worldstate.WorldSnapshot], sigChan chan os.Signal, deadline <-chan time.Time, stop chan struct{}) {
	const tickRate = 60.0
	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	logTicker := time.NewTicker(time.Second)
	defer logTicker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-sigChan:
			logrus.Info("shutdown signal received")
			close(stop)
			return
		case <-deadline:
			logrus.Info("run duration elapsed")
			close(stop)
			return
		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			playback.Step(dt, buf)
		case <-logTicker.C:
			logrus.WithFields(logrus.Fields{
				"system_name":      "demo_render_loop",
				"playback_time":    round4(playback.PlaybackTime),
				"timescale":        round4(playback.Timescale),
				"catchup_seconds":  round4(playback.CatchupTime.ValueOr(0)),
				"extrapolating_db": round4(playback.DBExtrapolatingEMA.ValueOr(0)),
				"clamping_db":      round4(playback.DBClampingEMA.ValueOr(0)),
				"scaling_db":       round4(playback.DBScalingEMA.ValueOr(0)),
				"remote_jitter":    round4(buf.RemoteDeltaTime.StdDev),
				"buffer_length":    buf.Len(),
			}).Info("engine status")
		}
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// remoteServer simulates the networked peer: it advances a tiny scripted
// world and pushes delta-encoded snapshots to connected clients over
// WebSocket, each delayed and occasionally dropped per the configured
// netsim.Condition.
type remoteServer struct {
	httpServer *http.Server
	listenAddr string
	settings   interpolation.Settings
	cond       netsim.Condition
}

func newRemoteServer(settings interpolation.Settings, cond netsim.Condition) (*remoteServer, error) {
	mux := http.NewServeMux()
	r := &remoteServer{settings: settings, cond: cond}

	mux.HandleFunc("/ws", r.handleConn)

	httpServer := &http.Server{Addr: "127.0.0.1:0", Handler: mux}
	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("demo: listen: %w", err)
	}
	r.listenAddr = ln.Addr().String()
	r.httpServer = httpServer

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("remote server stopped")
		}
	}()

	return r, nil
}

func (r *remoteServer) addr() string {
	return "ws://" + r.listenAddr + "/ws"
}

func (r *remoteServer) stop() {
	r.httpServer.Close()
}

var upgrader = websocket.Upgrader{CheckOrigin: func(req *http.Request) bool { return true }}

func (r *remoteServer) handleConn(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logrus.WithError(err).Error("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	link := netsim.NewLink(r.cond, time.Now().UnixNano())
	encoder := worldstate.NewDeltaEncoder()

	var tick uint64
	start := time.Now()

	ticker := time.NewTicker(time.Duration(r.settings.Period * float64(time.Second)))
	defer ticker.Stop()

	for range ticker.C {
		if link.ShouldDrop() {
			continue
		}

		remoteTime := time.Since(start).Seconds()
		snapshot := scriptedSnapshot(tick, remoteTime)
		tick++

		delta := encoder.Encode(snapshot)
		wire, err := worldstate.EncodeWire(delta)
		if err != nil {
			logrus.WithError(err).Error("failed to encode delta")
			continue
		}

		delay := link.SamplePing()
		time.Sleep(time.Duration(delay * float64(time.Second)))

		if err := conn.WriteMessage(websocket.BinaryMessage, wire); err != nil {
			logrus.WithError(err).Debug("websocket write error, closing connection")
			return
		}
	}
}

// scriptedSnapshot produces a single entity circling the origin, giving the
// demo a position and heading that visibly changes tick to tick.
func scriptedSnapshot(tick uint64, remoteTime float64) worldstate.WorldSnapshot {
	const radius = 5.0
	const angularSpeed = 30.0 // degrees per second

	angle := angularSpeed * remoteTime
	snapshot := worldstate.NewWorldSnapshot(tick, remoteTime)
	snapshot.Set(1, worldstate.EntityState{
		PosX:           radius * math.Cos(angle*math.Pi/180),
		PosY:           radius * math.Sin(angle*math.Pi/180),
		HeadingDegrees: math.Mod(angle+90, 360),
		Health:         100,
	})
	return snapshot
}

// linkClient is the consumer half: it dials the remote server and decodes
// delta packets back into full world snapshots.
type linkClient struct {
	conn    *websocket.Conn
	decoder *worldstate.DeltaDecoder
}

func newLinkClient(addr string) (*linkClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("demo: dial %s: %w", addr, err)
	}
	return &linkClient{conn: conn, decoder: worldstate.NewDeltaDecoder()}, nil
}

func (c *linkClient) close() {
	c.conn.Close()
}

func (c *linkClient) receiveLoop(buf *interpolation.Buffer[worldstate.WorldSnapshot], stop chan struct{}) {
	arrivalClock := time.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logrus.WithError(err).Debug("websocket read error")
			return
		}

		delta, err := worldstate.DecodeWire(data)
		if err != nil {
			logrus.WithError(err).Error("failed to decode delta")
			continue
		}

		remoteTime := time.Since(arrivalClock).Seconds()

		snapshot, err := c.applyOrSeed(delta, remoteTime)
		if err != nil {
			logrus.WithError(err).Debug("failed to apply delta, waiting for a fresh baseline")
			continue
		}

		buf.Insert(snapshot)
	}
}

// applyOrSeed seeds the decoder's baseline directly from the first delta
// received (an encoder's first packet is always all-Added, relative to
// tick zero), and applies every subsequent delta against it normally.
func (c *linkClient) applyOrSeed(delta *worldstate.DeltaPacket, remoteTime float64) (worldstate.WorldSnapshot, error) {
	if !c.decoder.HasBaseline() {
		seed := worldstate.NewWorldSnapshot(delta.TargetTick, remoteTime)
		for id, state := range delta.Added {
			seed.Set(id, state)
		}
		c.decoder.SetBaseline(seed)
		return seed, nil
	}
	return c.decoder.Apply(delta, remoteTime)
}
