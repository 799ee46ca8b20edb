package notify

import (
	"context"

	"github.com/custody_settlement/logging"
	"github.com/sirupsen/logrus"
)

type LogPublisher struct {
	log *logging.Logger
}

func NewLogPublisher(log *logging.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Notify(_ context.Context, evt Event) error {
	p.log.WithFields(logrus.Fields{
		"event":     evt.Type,
		"user_id":   evt.UserID,
		"entity":    evt.Entity,
		"entity_id": evt.EntityID,
		"currency":  evt.Currency,
		"amount":    evt.Amount,
		"status":    evt.Status,
	}).Info("notification")
	return nil
}
