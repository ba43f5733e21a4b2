package availability

import (
	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
)

// MaxGroupOccupants жёсткий потолок размера группы
const MaxGroupOccupants = 20

// HasRoom проверяет есть ли свободное место в слоте при текущем числе броней
func HasRoom(unit *model.ReservableUnit, reserved int) bool {
	if unit.CapacityMode == model.CapacityOneToOne {
		return reserved == 0
	}
	return reserved < unit.MaxOccupants
}

// NormalizeCapacity приводит вместимость к режиму: 1 для индивидуальных, 2..20 для групп
func NormalizeCapacity(mode model.CapacityMode, maxOccupants int) (int, error) {
	switch mode {
	case model.CapacityOneToOne:
		return 1, nil
	case model.CapacityGroup:
		if maxOccupants < 2 || maxOccupants > MaxGroupOccupants {
			return 0, apperror.Validation("group size must be between 2 and %d, got %d", MaxGroupOccupants, maxOccupants)
		}
		return maxOccupants, nil
	default:
		return 0, apperror.Validation("unknown capacity mode %q", mode)
	}
}
