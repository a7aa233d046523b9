package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoListings       = errors.New("no usable listings")
	ErrNoBaseline       = errors.New("baseline reference unavailable")
	ErrNoSamples        = errors.New("no samples")
	ErrPriceSwing       = errors.New("price swing exceeds limit")
	ErrPriceInverted    = errors.New("buy price not below sell price")
	ErrFeedDisconnected = errors.New("feed disconnected")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnresolvedItem   = errors.New("item id could not be resolved")
)
