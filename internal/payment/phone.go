package payment

import (
	"regexp"
	"strings"
)

var (
	phoneNoise = regexp.MustCompile(`[\s\-().]`)
	kenyaPhone = regexp.MustCompile(`^254[17]\d{8}$`)
)

// NormalizePhone converts local (07..., 01...), international (+254..., 254...)
// and bare (7..., 1...) forms to 2547XXXXXXXX / 2541XXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	p := phoneNoise.ReplaceAllString(strings.TrimSpace(raw), "")
	p = strings.TrimPrefix(p, "+")

	switch {
	case strings.HasPrefix(p, "254"):
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case len(p) == 9:
		p = "254" + p
	}

	if !kenyaPhone.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}
