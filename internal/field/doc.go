// Package field implements typed reactive fields: named, typed attributes
// joined by routes that stay consistent through push-notify, pull-recompute
// updates.
//
// A write to a field notifies its outgoing routes. Notified fields only
// mark themselves stale and pass the event on; nothing is recomputed until
// somebody reads. A read brings the field up to date first, which in turn
// brings its inputs up to date, so evaluation happens lazily in dependency
// order.
//
// Three variants share the same Base: SField (one value), MField (an
// ordered sequence) and RefField/RefMField (reference-counted values with
// ownership hooks). Each field type declares a Contract describing which
// route types it accepts, and each field carries an AccessType checked
// against the identity of the caller.
//
// The package does no locking. A graph is owned by one goroutine at a time;
// see the engine package for marshalling writes from elsewhere.
package field
