package main

import (
	"flag"
	"log"
	"os"

	"github.com/IELS2001/m16go/pkg/gateway/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/m16/"
)

func init() {
	if val := os.Getenv("M16_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	// Gateway traffic is JSON; print it as it comes.
	q.Sub("modems/#", mqtt.Handler(func(topic string, payload []byte) {
		log.Printf("%s: %s", topic, string(payload))
	}))

	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
