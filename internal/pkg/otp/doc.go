// Package otp generates short-lived one-time passcodes and models them as
// immutable records with an absolute expiry.
//
// Codes are drawn from a cryptographically secure source over a configurable
// character class. This package deliberately does not implement TOTP/HOTP;
// codes here are random secrets delivered out of band.
package otp
