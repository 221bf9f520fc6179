package service

import (
	"context"
	"errors"
	"time"

	"github.com/anotheregi/blastkeun/internal/client"
	"github.com/anotheregi/blastkeun/internal/delay"
	"github.com/anotheregi/blastkeun/internal/metrics"
	"github.com/anotheregi/blastkeun/internal/mode"
	"github.com/anotheregi/blastkeun/internal/model"
	"github.com/anotheregi/blastkeun/internal/personalize"
	"github.com/anotheregi/blastkeun/internal/phone"
)

// Sender handles one contact: typing pause, phone check, personalization,
// the gateway call and the read pause after a successful send.
type Sender struct {
	gateway client.Gateway
	delay   delay.Simulator
	metrics *metrics.Metrics
	now     func() time.Time

	typingFraction float64
	readMin        time.Duration
	readMax        time.Duration
}

var errStopRequested = errors.New("stop requested")

// Process returns a non-nil error only when ctx ended or stopped reported
// true before the gateway was called; the contact is then left unprocessed.
func (s *Sender) Process(ctx context.Context, p mode.Profile, c model.Contact, template string, stopped func() bool) (model.MessageOutcome, error) {
	typingMin, typingMax := delay.Scale(p.MinDelay, p.MaxDelay, s.typingFraction)
	if _, err := s.delay.Wait(ctx, typingMin, typingMax); err != nil {
		return model.MessageOutcome{}, err
	}
	if stopped() {
		return model.MessageOutcome{}, errStopRequested
	}

	number, err := phone.Normalize(c.Phone)
	if err != nil {
		return s.failed(c.Phone, err.Error()), nil
	}

	text := personalize.Render(template, c)

	start := s.now()
	remoteID, err := s.gateway.Send(ctx, number, text)
	s.metrics.ObserveSend(string(p.ID), s.now().Sub(start))
	if err != nil {
		return s.failed(number, err.Error()), nil
	}

	// The message is already out; a shutdown during this pause does not
	// change the outcome.
	_, _ = s.delay.Wait(ctx, s.readMin, s.readMax)

	return model.MessageOutcome{
		Phone:           number,
		Success:         true,
		RemoteMessageID: remoteID,
		At:              s.now(),
	}, nil
}

func (s *Sender) failed(number, reason string) model.MessageOutcome {
	return model.MessageOutcome{
		Phone:   number,
		Success: false,
		Error:   reason,
		At:      s.now(),
	}
}
