// Package telegram groups the two transports behind the delivery clients:
// botapi speaks the HTTP Bot API, mtproto drives a user account session.
// Both translate protocol errors into delivery.Transient and delivery.Fatal.
package telegram
