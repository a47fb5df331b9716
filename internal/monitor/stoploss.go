package monitor

import (
	"stockwatch/internal/models"
	"stockwatch/pkg/utils"
)

// StopLossUpdate - изменение стоп-цены одной позиции
type StopLossUpdate struct {
	Symbol        string
	OldStop       float64
	NewStop       float64
	AllocatedLoss float64
	Weight        float64
}

// AllocateStopLosses распределяет портфельный бюджет потерь по позициям
//
// Алгоритм:
//  1. Стоимость позиции = акции * текущая цена; сумма - стоимость
//     портфеля. При стоимости <= 0 обновлений нет.
//  2. Вес позиции = её оценка риска / сумма оценок; когда оценок ещё
//     нет - равные веса. Рискованная позиция забирает большую долю
//     бюджета: её стоп подтягивается ближе, стопы спокойных позиций
//     отпускаются.
//  3. Общий допустимый убыток = стоимость портфеля * maxLossPct.
//  4. Бюджет делится пропорционально весам.
//  5. Допустимая доля потерь позиции ограничивается [0,1), стоп-цена =
//     цена входа * (1 - доля), не ниже нуля.
//  6. Обновляются только позиции, чей новый стоп отличается от
//     сохранённого больше чем на epsilon - защита от шума.
//
// Позиции без текущей цены пропускаются целиком: им нельзя посчитать
// ни стоимость, ни стоп.
func AllocateStopLosses(p *models.Portfolio, maxLossPct, epsilon float64) []StopLossUpdate {
	if p == nil || len(p.Positions) == 0 || maxLossPct <= 0 {
		return nil
	}

	// Стоимость портфеля и сумма оценок по позициям с ценой
	var portfolioValue, scoreSum float64
	var priced int
	for _, pos := range p.Positions {
		if pos.CurrentPrice <= 0 {
			continue
		}
		portfolioValue += pos.MarketValue()
		scoreSum += float64(pos.RiskScore)
		priced++
	}
	if portfolioValue <= 0 || priced == 0 {
		return nil
	}

	totalLossBudget := portfolioValue * maxLossPct / 100

	updates := make([]StopLossUpdate, 0, priced)
	for _, pos := range p.Positions {
		if pos.CurrentPrice <= 0 {
			continue
		}

		var weight float64
		if scoreSum > 0 {
			weight = float64(pos.RiskScore) / scoreSum
		} else {
			weight = 1 / float64(priced)
		}

		allocatedLoss := totalLossBudget * weight

		positionValue := pos.MarketValue()
		if positionValue <= 0 {
			continue
		}
		lossFraction := allocatedLoss / positionValue
		if lossFraction < 0 {
			lossFraction = 0
		}
		if lossFraction >= 1 {
			lossFraction = 0.999999
		}

		newStop := pos.EntryPrice * (1 - lossFraction)
		if newStop < 0 {
			newStop = 0
		}
		newStop = utils.RoundToCents(newStop)

		pos.AllocatedLoss = allocatedLoss
		pos.Weight = weight

		diff := newStop - pos.StopLoss
		if diff < 0 {
			diff = -diff
		}
		if diff <= epsilon {
			continue
		}

		update := StopLossUpdate{
			Symbol:        pos.Symbol,
			OldStop:       pos.StopLoss,
			NewStop:       newStop,
			AllocatedLoss: allocatedLoss,
			Weight:        weight,
		}
		pos.StopLoss = newStop
		updates = append(updates, update)
	}

	return updates
}
