// Package loyalty - resolver.go определяет текущий уровень по сумме баллов
// и прогресс до следующего уровня.
package loyalty

import (
	"fmt"

	"shft.ru/secure-bot/internal/common"
)

// Resolution - результат определения уровня. Пересчитывается на каждый запрос,
// нигде не хранится.
//
// Next, PointsToNext и ProgressPercent равны nil на верхнем уровне:
// «следующего уровня нет» не путается с «осталось 0 баллов».
type Resolution struct {
	Points          int64    `json:"points"`
	Current         Tier     `json:"current"`
	Next            *Tier    `json:"next,omitempty"`
	PointsToNext    *int64   `json:"pointsToNext,omitempty"`
	ProgressPercent *float64 `json:"progressPercent,omitempty"`
}

// IsTop сообщает, достигнут ли верхний уровень.
func (r Resolution) IsTop() bool {
	return r.Next == nil
}

// Resolve находит уровень для totalPoints.
//
// Уровни просматриваются сверху вниз, первый с MinPoints <= totalPoints - текущий.
// Нижняя граница включительная: ровно 250 баллов - это уже серебро.
// Отрицательный баланс - ошибка данных выше по цепочке, возвращаем common.ErrInvalidInput.
func (t *Table) Resolve(totalPoints int64) (Resolution, error) {
	if totalPoints < 0 {
		return Resolution{}, fmt.Errorf("%w: баллы %d < 0", common.ErrInvalidInput, totalPoints)
	}

	// tiers[0].MinPoints == 0 гарантирован NewTable, поэтому idx найдётся всегда
	idx := 0
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if t.tiers[i].MinPoints <= totalPoints {
			idx = i
			break
		}
	}

	res := Resolution{
		Points:  totalPoints,
		Current: t.tiers[idx],
	}
	if idx == len(t.tiers)-1 {
		return res, nil
	}

	next := t.tiers[idx+1]
	toNext := next.MinPoints - totalPoints

	// Знаменатель > 0 по монотонности порогов
	span := float64(next.MinPoints - res.Current.MinPoints)
	progress := float64(totalPoints-res.Current.MinPoints) / span * 100
	progress = min(max(progress, 0), 100)

	res.Next = &next
	res.PointsToNext = &toNext
	res.ProgressPercent = &progress
	return res, nil
}
