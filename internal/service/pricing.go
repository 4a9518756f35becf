package service

import "time"

// RefundPolicy is the tiered cancellation policy, keyed on how long before start
// the reservation is cancelled.
type RefundPolicy struct {
	FullRefundBefore    time.Duration // at or beyond this lead time the whole fee is returned
	PartialRefundBefore time.Duration // at or beyond this lead time PartialPercent is returned
	PartialPercent      int64
}

func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		FullRefundBefore:    24 * time.Hour,
		PartialRefundBefore: time.Hour,
		PartialPercent:      50,
	}
}

// Fee charges hourlyRate for every started hour of [start, end).
// Amounts are in cents. A non-positive window costs nothing.
func Fee(hourlyRate int64, start, end time.Time) int64 {
	return hourlyRate * billableHours(end.Sub(start))
}

// Refund returns the part of fee given back when cancelling at now.
func Refund(fee int64, start, now time.Time, policy RefundPolicy) int64 {
	lead := start.Sub(now)
	switch {
	case lead <= 0:
		return 0
	case lead >= policy.FullRefundBefore:
		return fee
	case lead >= policy.PartialRefundBefore:
		return fee * policy.PartialPercent / 100
	}
	return 0
}

// OverstayFee bills every started hour a vehicle stays past end.
func OverstayFee(hourlyRate int64, end, exit time.Time) int64 {
	return hourlyRate * billableHours(exit.Sub(end))
}

func billableHours(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	minutes := int64((d + time.Minute - 1) / time.Minute)
	return (minutes + 59) / 60
}
