package domain

import (
	"errors"
	"fmt"
)

// Business rejections: expected outcomes of a bid attempt caused by the
// caller. They are user-facing, never logged as errors and never retried.
var (
	ErrAuctionNotFound = &RejectionError{Reason: RejectionNotFound}
	ErrAuctionInactive = &RejectionError{Reason: RejectionInactive}
	ErrSelfBid         = &RejectionError{Reason: RejectionSelfBid}
	ErrAuctionExpired  = &RejectionError{Reason: RejectionExpired}
)

// Admission rejections from the concurrency guard. Like business rejections
// they are the caller's problem, but they happen before any store access.
var (
	ErrOnCooldown  = &RejectionError{Reason: RejectionCooldown}
	ErrBidInFlight = &RejectionError{Reason: RejectionInFlight}
)

type RejectionReason string

const (
	RejectionNotFound     RejectionReason = "not_found"
	RejectionInactive     RejectionReason = "inactive"
	RejectionSelfBid      RejectionReason = "self_bid"
	RejectionExpired      RejectionReason = "expired"
	RejectionBelowMinimum RejectionReason = "below_minimum"
	RejectionCooldown     RejectionReason = "cooldown"
	RejectionInFlight     RejectionReason = "in_flight"
)

// RejectionError is the user's fault, not the system's. MinimumBid is set
// only for below-minimum rejections and carries the exact minimum computed
// from the auction row read inside the transaction.
type RejectionError struct {
	Reason     RejectionReason
	MinimumBid float64
}

func (e *RejectionError) Error() string {
	if e.Reason == RejectionBelowMinimum {
		return fmt.Sprintf("bid rejected: minimum bid is %.2f", e.MinimumBid)
	}
	return fmt.Sprintf("bid rejected: %s", e.Reason)
}

// Is lets errors.Is match the sentinel rejections by reason, so a
// BelowMinimum error built with a computed minimum still matches.
func (e *RejectionError) Is(target error) bool {
	var r *RejectionError
	if !errors.As(target, &r) {
		return false
	}
	return e.Reason == r.Reason
}

// BelowMinimum builds the rejection for a bid under the required minimum.
func BelowMinimum(minimum float64) *RejectionError {
	return &RejectionError{Reason: RejectionBelowMinimum, MinimumBid: minimum}
}

// IsRejection reports whether err is a business or admission rejection.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

// TransientError wraps store failures worth retrying: lock waits, deadlocks,
// timeouts. When retries exhaust it surfaces to the caller as an internal
// failure, rendered differently from a rejection.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// InvariantError means the store returned a row violating the data model
// (price below starting price, ended auction with a live timer, ...). It is
// fatal to the single operation, logged, never silently repaired.
type InvariantError struct {
	AuctionID int64
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation on auction %d: %s", e.AuctionID, e.Detail)
}
