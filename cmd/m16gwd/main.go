package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"io"

	"github.com/golang/glog"

	"github.com/IELS2001/m16go/pkg/framework"
	"github.com/IELS2001/m16go/pkg/gateway"
	"github.com/IELS2001/m16go/pkg/gateway/httpapi"
	"github.com/IELS2001/m16go/pkg/gateway/mqtt"
	"github.com/IELS2001/m16go/pkg/modem"
	"github.com/IELS2001/m16go/pkg/modem/serial"
	"github.com/IELS2001/m16go/pkg/modem/sim"
	"github.com/IELS2001/m16go/pkg/store"
)

var configFile = flag.String("config", "", "Config file path.")

func main() {
	flag.Parse()

	cfg, err := gateway.Load(*configFile)
	if err != nil {
		glog.Exitf("load config: %v", err)
	}

	var link interface {
		modem.Transport
		io.Closer
	}
	if cfg.Serial.Device == sim.DeviceName {
		link = sim.NewDemoDevice(cfg.BitLayout())
	} else {
		if link, err = serial.Open(serial.Config{Device: cfg.Serial.Device, Baud: cfg.Serial.Baud}); err != nil {
			glog.Exitf("open serial: %v", err)
		}
	}
	defer link.Close()
	sess := modem.NewSession(link, cfg.BitLayout())

	var queue *mqtt.Queue
	if cfg.MQTT.URL != "" {
		if queue, err = mqtt.NewQueueFromURL(cfg.MQTT.URL); err != nil {
			glog.Exitf("mqtt: %v", err)
		}
		token := queue.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			glog.Exitf("mqtt connect: %v", err)
		}
		defer queue.Close()
	}

	var st *store.Store
	if cfg.Redis.Addr != "" {
		if st, err = store.New(context.Background(), store.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}); err != nil {
			glog.Exitf("redis: %v", err)
		}
		defer st.Close()
	}

	bridge := gateway.NewBridge(cfg, sess, queue, st)

	runner := framework.NewRunner().HandleSignals()
	runner.Go(bridge)
	if cfg.HTTP.Addr != "" {
		runner.Go(httpapi.New(cfg.HTTP.Addr, bridge))
	}
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
