package jobs

import "errors"

// ErrNoSlot is returned by reservation Try* calls when a pending row already
// exists for the action class. The caller's job terminates cleanly without
// side effects.
var ErrNoSlot = errors.New("jobs: no reservation slot available")

// ErrJobNotFound is returned by Store.Get when no row matches the id.
var ErrJobNotFound = errors.New("jobs: job not found")

// ErrReservationNotFound is returned when resolving a reservation that has
// already been swept or never existed.
var ErrReservationNotFound = errors.New("jobs: reservation not found")
