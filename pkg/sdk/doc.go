// Package sdk assembles the EdgeLink device SDK.
//
// A Client wires configuration, device identity, session
// authentication, the management API surface, and the realtime
// channel into one object:
//
//	cfg, _ := config.Load("edgelink.yaml")
//	client, _ := sdk.New(cfg)
//	defer client.Close()
//
//	client.Connect()
//	client.SendData(device.NewData(device.StatusOnline).
//		WithReading("temperature", 21.5))
//
// Webhook delivery runs through a Dispatcher created with
// NewDispatcher, which shares the client's retry policy.
package sdk
