package usecase

// Quota возвращает число записей раздела, подлежащих удалению.
// Запрошенное значение округляется вверх, затем ограничивается так,
// чтобы в разделе осталось не меньше minimumRetained записей.
func Quota(totalCount, percent, minimumRetained int) int {
	if totalCount <= 0 {
		return 0
	}

	maxDeletable := max(0, totalCount-minimumRetained)
	return min(requested(totalCount, percent), maxDeletable)
}

// requested - ceil(totalCount * percent / 100) в целых числах
func requested(totalCount, percent int) int {
	if totalCount <= 0 || percent <= 0 {
		return 0
	}
	return (totalCount*percent + 99) / 100
}
