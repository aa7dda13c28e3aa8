package domain

import "errors"

var (
	ErrNotFound               = errors.New("booking not found")
	ErrDuplicateID            = errors.New("booking id already exists")
	ErrInvalidPriority        = errors.New("priority must be between 1 and 5")
	ErrSlotConflict           = errors.New("room already booked within two hours of this time")
	ErrAlreadyReserved        = errors.New("booking is already reserved")
	ErrAlreadyFree            = errors.New("booking is not reserved")
	ErrNotOwner               = errors.New("booking is reserved by another user")
	ErrUnauthenticated        = errors.New("caller is not authenticated")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrInvalidRange           = errors.New("invalid generation range")
	ErrInvalidBooking         = errors.New("invalid booking")

	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMismatch   = errors.New("password and confirmation do not match")
	ErrTooManyAttempts    = errors.New("too many login attempts")
)
