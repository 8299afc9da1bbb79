package domain

import "errors"

// ErrDuplicateCommand indicates the command id is already recorded in the
// command log; the command was applied before and must not run again.
var ErrDuplicateCommand = errors.New("duplicate command")

// ErrSlotOccupied indicates the (aggregateId, serialNumber) slot already
// holds an event. Callers lost the race for the slot and may retry at the
// next one.
var ErrSlotOccupied = errors.New("event slot occupied")

// ErrAccountAlreadyExists rejects CreateAccount for an existing aggregate.
var ErrAccountAlreadyExists = errors.New("account already exists")

// ErrAccountNotFound rejects operations on an aggregate with no events.
var ErrAccountNotFound = errors.New("account not found")

// ErrInsufficientFunds rejects a withdrawal exceeding the current balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrCorruptedLog indicates replay of persisted events violated an
// invariant. This is not a business rejection; the log itself is bad.
var ErrCorruptedLog = errors.New("corrupted event log")

// ErrUnknownType indicates a message type with no registered handler.
var ErrUnknownType = errors.New("unknown message type")

// ErrConcurrencyConflict indicates the read-model store rejected an update
// because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")
