// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package reliability keeps event Ids from being transmitted twice.

The eSocial service deduplicates by event Id, so an Id that has been put on
the wire must never be reused, not even to retry a submission that failed.
A rejected or failed event is resubmitted as a new event with a new Id.

# Submission Tracker

	tracker := reliability.NewTracker(24 * time.Hour)
	defer tracker.Close()

	if err := tracker.Reserve(id, signedXML); err != nil {
	    // errors.Is(err, reliability.ErrDuplicateID)
	}
	tracker.MarkSent(id, protocol)

Reservations outlive failures: an Id whose transmission failed stays
reserved until the duplicate window expires.
*/
package reliability
