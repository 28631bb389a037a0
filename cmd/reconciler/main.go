// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/component"
)

var stop = make(chan os.Signal, 1)

func main() {
	log := logrus.New()
	manager := component.Prepare(log)
	manager.Start()

	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		log.Info("gracefully stopping...")
		manager.Stop()
	case <-manager.Done():
	}
}
