package db

import (
	"fmt"

	"backend-triptracker/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var newMQTTClientFn = mqtt.NewClient

func ConnectMQTT(cfg config.Config) (mqtt.Client, error) {
	if cfg.MQTTBroker == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	client := newMQTTClientFn(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
