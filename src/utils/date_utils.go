package utils

import (
	"fmt"
	"time"
)

var monthsPT = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatLongDatePT formats t as "17 de outubro de 2026".
func FormatLongDatePT(t time.Time) string {
	return fmt.Sprintf("%02d de %s de %d", t.Day(), monthsPT[t.Month()-1], t.Year())
}
