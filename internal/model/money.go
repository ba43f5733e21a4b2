package model

import "fmt"

// Money сумма в минимальных единицах валюты (копейки/центы)
type Money int64

// String форматирует сумму как "150.00"
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// IsPositive проверяет что сумма больше нуля
func (m Money) IsPositive() bool {
	return m > 0
}
