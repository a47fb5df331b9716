package utils

import (
	"math"
)

// math.go - математические утилиты для риск-мониторинга
//
// Назначение:
// Вспомогательные функции для расчёта риск-сигналов и аллокации стопов.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - PctChange: относительное изменение цены
// - Clamp / Clamp01: ограничение значения диапазоном
// - RoundToCents: округление денежных значений
// - Mean / StdDev: выборочные статистики для серий доходностей

// PctChange возвращает относительное изменение от from к to.
//
// Используется для проверки порога инвалидации риск-кэша и
// детекции резких падений цены.
//
// Примеры:
//   - PctChange(100, 94) = -0.06 (падение на 6%)
//   - PctChange(100, 103) = 0.03
//   - PctChange(0, x) = 0 (защита от деления на ноль)
func PctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}

// Clamp ограничивает значение диапазоном [lo, hi]
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Clamp01 ограничивает значение диапазоном [0, 1]
//
// Все риск-сигналы нормализуются в [0,1] перед взвешиванием.
func Clamp01(value float64) float64 {
	return Clamp(value, 0, 1)
}

// RoundToCents округляет денежное значение до центов (2 знака).
//
// Стоп-цены храним и сравниваем в центах, чтобы эпсилон-проверка
// |newStop - oldStop| > 0.01 не срабатывала на float-шуме.
func RoundToCents(value float64) float64 {
	return math.Round(value*100) / 100
}

// Mean возвращает среднее арифметическое серии.
// Пустая серия - 0.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// StdDev возвращает выборочное стандартное отклонение серии.
//
// Серии короче 2 элементов - 0 (волатильность не определена).
func StdDev(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	mean := Mean(series)
	sum := 0.0
	for _, v := range series {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}
