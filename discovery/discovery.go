// Package discovery announces a software HFP Audio Gateway endpoint on
// the local network via mDNS/DNS-SD, for interactive testing setups
// where the AG isn't a real Bluetooth radio but a TCP-reachable bridge
// (see transport/tcp and cmd/hfpctl). It uses the pure-Go
// github.com/brutella/dnssd package for cross-platform mDNS/DNS-SD
// service announcement without requiring any system daemon or C library
// dependencies.
package discovery

import (
	"context"

	"github.com/brutella/dnssd"
)

// ServiceType is the DNS-SD service type this package announces under.
const ServiceType = "_hfp-ag._tcp"

// Announcer holds one active DNS-SD service announcement.
type Announcer struct {
	svc    *dnssd.Service
	rsp    dnssd.Responder
	cancel context.CancelFunc
}

// Announce starts advertising name on port over DNS-SD, returning an
// Announcer the caller must Stop when done.
func Announce(ctx context.Context, name string, port int) (*Announcer, error) {
	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: ServiceType,
		Port: port,
	}
	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, err
	}

	rsp, err := dnssd.NewResponder()
	if err != nil {
		return nil, err
	}
	if _, err := rsp.Add(svc); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	go rsp.Respond(runCtx) //nolint:errcheck

	return &Announcer{svc: &svc, rsp: rsp, cancel: cancel}, nil
}

// Stop withdraws the announcement.
func (a *Announcer) Stop() {
	a.cancel()
}
