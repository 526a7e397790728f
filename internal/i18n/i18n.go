package i18n

import "strings"

type Lang string

const (
	ES Lang = "es"
	EN Lang = "en"
)

func Parse(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "es":
		return ES
	case "en":
		return EN
	default:
		return ES
	}
}
