package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/rf433/internal/config"
	"github.com/sweeney/rf433/internal/logic"
	"github.com/sweeney/rf433/internal/mqtt"
	"github.com/sweeney/rf433/internal/rf433"
	"github.com/sweeney/rf433/internal/status"
	"github.com/sweeney/rf433/internal/web"
)

// statusInterval is how often counters are copied to the status tracker
// and the heartbeat is checked.
const statusInterval = time.Second

// queueSize bounds the decodes and send requests waiting for the loop, and
// the sends waiting behind the one in flight.
const queueSize = 32

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the MQTT bridge and HTTP status server",
		Flags: serveFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "broker", Usage: "MQTT broker address (empty to disable)"},
		&cli.StringFlag{Name: "http", Usage: "HTTP status address (empty to disable)"},
		&cli.DurationFlag{Name: "holdoff", Usage: "Window in which a repeated code is not reported again"},
		&cli.DurationFlag{Name: "heartbeat", Usage: "Heartbeat interval (0 to disable)"},
	}
}

// txSender is the part of rf433.Transmitter the loop drives.
type txSender interface {
	Start(code uint64) (<-chan error, error)
	SetBits(n int) error
	SetRepeats(n int) error
}

func serve(cfg config.Config) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	var publisher interface {
		mqtt.Publisher
		mqtt.Subscriber
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTTOptions())
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), trackerConfig(cfg))
	tracker.SetMQTTConnected(publisher.IsConnected())

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.WithError(err).Warn("failed to publish startup event")
	} else {
		log.Info("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTP.Addr).Info("http status server listening")
	}

	d := &daemon{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		holdoff:    cfg.Daemon.Holdoff.Duration,
		heartbeat:  cfg.Daemon.Heartbeat.Duration,
		now:        time.Now,
	}

	results := make(chan rf433.Result, queueSize)
	if cfg.RXEnabled() {
		rx, err := rf433.NewReceiver(hw.ctrl, cfg.ReceiverConfig(), func(r rf433.Result) {
			select {
			case results <- r:
			default:
				log.WithField("code", r.Code).Warn("decode queue full, dropping code")
			}
		})
		if err != nil {
			return fmt.Errorf("init receiver: %w", err)
		}
		defer rx.Close()
		d.rxStats = rx.Stats
		log.WithFields(log.Fields{"pin": cfg.Receiver.Pin, "min_bits": cfg.Receiver.MinBits, "max_bits": cfg.Receiver.MaxBits}).Info("receiver started")
	}

	requests := make(chan mqtt.SendRequest, queueSize)
	if cfg.TXEnabled() {
		tx, err := rf433.NewTransmitter(hw.ctrl, hw.engine, cfg.TransmitterConfig())
		if err != nil {
			return fmt.Errorf("init transmitter: %w", err)
		}
		defer tx.Close()
		d.tx = tx
		d.txBits = cfg.Transmitter.Bits
		d.txRepeats = cfg.Transmitter.Repeats

		err = publisher.SubscribeSend(func(req mqtt.SendRequest) {
			select {
			case requests <- req:
			default:
				log.WithField("code", req.Code).Warn("send queue full, dropping request")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", mqtt.TopicSend, err)
		}
		log.WithFields(log.Fields{"pin": cfg.Transmitter.Pin, "bits": cfg.Transmitter.Bits, "repeats": cfg.Transmitter.Repeats}).Info("transmitter started")
	}

	log.WithFields(log.Fields{
		"broker":    cfg.MQTT.Broker,
		"holdoff":   cfg.Daemon.Holdoff.Duration,
		"heartbeat": cfg.Daemon.Heartbeat.Duration,
	}).Info("started")

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(results, requests, ticker.C, sigCh)
}

func trackerConfig(cfg config.Config) status.Config {
	return status.Config{
		Backend:     cfg.GPIO.Backend,
		RXPin:       cfg.Receiver.Pin,
		TXPin:       cfg.Transmitter.Pin,
		MinBits:     cfg.Receiver.MinBits,
		MaxBits:     cfg.Receiver.MaxBits,
		TxBits:      cfg.Transmitter.Bits,
		Repeats:     cfg.Transmitter.Repeats,
		HoldoffMs:   cfg.Daemon.Holdoff.Milliseconds(),
		HeartbeatMs: cfg.Daemon.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Addr,
	}
}

// daemon holds what runLoop needs. tx and rxStats are nil when the
// transmitter or receiver is disabled.
type daemon struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	rxStats    func() rf433.Stats
	tx         txSender
	txBits     int
	txRepeats  int
	holdoff    time.Duration
	heartbeat  time.Duration
	now        func() time.Time
}

// runLoop turns decodes into code events, runs send requests one at a time
// and publishes heartbeats until a signal arrives.
func (d *daemon) runLoop(results <-chan rf433.Result, requests <-chan mqtt.SendRequest, tick <-chan time.Time, sig <-chan os.Signal) error {
	detector := logic.NewDetector(d.holdoff, d.now())

	var (
		queue   []mqtt.SendRequest
		current mqtt.SendRequest
		done    <-chan error
	)
	startNext := func() {
		for done == nil && len(queue) > 0 {
			current, queue = queue[0], queue[1:]
			ch, err := d.startSend(current)
			if err != nil {
				log.WithError(err).WithField("code", current.Code).Error("send failed")
				d.tracker.RecordSendError()
				continue
			}
			done = ch
		}
	}

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: d.now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			d.refresh(detector)
			event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", signalName)
			if err := d.publisher.PublishSystem(event); err != nil {
				log.WithError(err).Warn("failed to publish shutdown event")
			} else {
				log.Info("published shutdown event")
			}
			return nil

		case r := <-results:
			event, ok := detector.Process(logic.Input{
				Code:  r.Code,
				Bits:  r.Bits,
				Gap:   r.Gap,
				Short: r.Short,
				Long:  r.Long,
				Time:  d.now(),
			})
			if !ok {
				log.WithFields(log.Fields{"code": r.Code, "bits": r.Bits}).Debug("repeat")
				continue
			}
			log.WithFields(log.Fields{"code": event.Code, "bits": event.Bits, "gap": event.Gap}).Info("code received")
			d.tracker.RecordEvent(event)
			if err := d.publisher.Publish(event); err != nil {
				log.WithError(err).Error("publish error")
			}
			d.refresh(detector)

		case req := <-requests:
			if d.tx == nil {
				log.WithField("code", req.Code).Warn("transmitter disabled, ignoring send request")
				continue
			}
			if len(queue) >= queueSize {
				log.WithFields(log.Fields{"code": req.Code, "pending": len(queue)}).Warn("send queue full, dropping request")
				continue
			}
			queue = append(queue, req)
			startNext()

		case err := <-done:
			done = nil
			fields := log.Fields{"code": current.Code}
			if err != nil {
				log.WithError(err).WithFields(fields).Error("send failed")
				d.tracker.RecordSendError()
			} else {
				bits := current.Bits
				if bits == 0 {
					bits = d.txBits
				}
				event := detector.Sent(current.Code, bits, d.now())
				log.WithFields(fields).WithField("bits", bits).Info("code sent")
				d.tracker.RecordEvent(event)
				if err := d.publisher.Publish(event); err != nil {
					log.WithError(err).Error("publish error")
				}
			}
			startNext()

		case <-tick:
			t := d.now()
			if hbData := detector.CheckHeartbeat(t, d.heartbeat); hbData != nil {
				log.WithFields(log.Fields{
					"uptime":  hbData.Uptime,
					"codes":   hbData.Counts.Codes,
					"repeats": hbData.Counts.Repeats,
					"sent":    hbData.Counts.Sent,
				}).Info("heartbeat")

				d.refresh(detector)
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(d.tracker.Snapshot(), "HEARTBEAT", ""),
				}
				if err := d.publisher.PublishSystem(hbEvent); err != nil {
					log.WithError(err).Warn("heartbeat publish error")
				}
				continue
			}
			d.refresh(detector)
		}
	}
}

// startSend applies the request's width and repeat count, falling back to
// the configured ones, and starts the transmission.
func (d *daemon) startSend(req mqtt.SendRequest) (<-chan error, error) {
	bits, repeats := d.txBits, d.txRepeats
	if req.Bits != 0 {
		bits = req.Bits
	}
	if req.Repeats != 0 {
		repeats = req.Repeats
	}
	if err := d.tx.SetBits(bits); err != nil {
		return nil, err
	}
	if err := d.tx.SetRepeats(repeats); err != nil {
		return nil, err
	}
	return d.tx.Start(req.Code)
}

// refresh copies the current counters into the status tracker.
func (d *daemon) refresh(detector *logic.Detector) {
	var rx status.ReceiverStats
	if d.rxStats != nil {
		s := d.rxStats()
		rx = status.ReceiverStats{
			Decoded:     s.Decoded,
			BadRatio:    s.BadRatio,
			OutOfBand:   s.OutOfBand,
			BitsOutside: s.BitsOutside,
		}
	}
	d.tracker.Update(detector.Counts(), rx)
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}
