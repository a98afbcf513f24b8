package notify

import (
	"context"
	"errors"
	"strings"

	"utility-billing/internal/eventing"
	readingsapp "utility-billing/internal/readings/application"
)

// FlaggedReadingHandler forwards ReadingFlagged events to n. reviewBase, when
// set, is joined with the reading id to form a review link.
func FlaggedReadingHandler(n Notifier, reviewBase string) eventing.EventHandler {
	return func(ctx context.Context, event any) error {
		if n == nil {
			return errors.New("flagged reading handler: nil notifier")
		}
		var flagged readingsapp.ReadingFlagged
		switch e := event.(type) {
		case readingsapp.ReadingFlagged:
			flagged = e
		case *readingsapp.ReadingFlagged:
			if e == nil {
				return nil
			}
			flagged = *e
		default:
			return nil
		}
		msg := FlaggedReading{
			ReadingID:   flagged.ReadingID,
			MeterID:     flagged.MeterID,
			Zone:        flagged.Zone,
			ReadingDate: flagged.ReadingDate,
			Value:       flagged.Value,
			Outcome:     "flagged",
			Warnings:    flagged.Warnings,
		}
		if reviewBase != "" {
			msg.ReviewURL = strings.TrimRight(reviewBase, "/") + "/" + flagged.ReadingID
		}
		return n.Notify(ctx, msg)
	}
}
