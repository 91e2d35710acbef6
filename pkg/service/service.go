package service

import (
	"os"
	"os/signal"
	"syscall"
)

// Service is a long running process driven by Run.
type Service interface {
	Init() error
	Start() error
	Stop() error
}

// Run initializes and starts s, then blocks until SIGINT or SIGTERM before
// stopping it.
func Run(s Service) error {
	if err := s.Init(); err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return s.Stop()
}
