// Package contact normalises mobile numbers and email addresses before they are
// blind-indexed, so equal contacts always hash equally.
package contact

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidMobile = errors.New("contact: invalid mobile number")
	ErrInvalidEmail  = errors.New("contact: invalid email address")
)

// Kind is the detected contact type.
type Kind int

const (
	KindMobile Kind = iota + 1
	KindEmail
)

var (
	mobilePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	mobileNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizeMobile strips separators and validates 7 to 15 digits with an optional
// leading '+'.
func NormalizeMobile(raw string) (string, error) {
	m := mobileNoise.Replace(strings.TrimSpace(raw))
	if !mobilePattern.MatchString(m) {
		return "", ErrInvalidMobile
	}
	return m, nil
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if len(e) > 254 || !emailPattern.MatchString(e) {
		return "", ErrInvalidEmail
	}
	return e, nil
}

// Normalize detects whether raw is an email or a mobile number and normalises it.
func Normalize(raw string) (string, Kind, error) {
	if strings.Contains(raw, "@") {
		e, err := NormalizeEmail(raw)
		return e, KindEmail, err
	}
	m, err := NormalizeMobile(raw)
	return m, KindMobile, err
}
