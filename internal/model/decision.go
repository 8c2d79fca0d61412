package model

// DecisionKind — результат сверки занятия РУЗ с записями Erudite.
type DecisionKind string

const (
	DecisionNotFound  DecisionKind = "not_found" // записи нет, занятие добавляется
	DecisionChanged   DecisionKind = "changed"   // запись есть, payload отличается
	DecisionUnchanged DecisionKind = "unchanged" // запись есть и совпадает
)

// Decision — решение по одному занятию. Создаётся движком сверки и
// немедленно потребляется, не персистится.
type Decision struct {
	Kind DecisionKind
	// RegistryID заполнен для Changed и Unchanged
	RegistryID string
}

// Decide сравнивает занятие РУЗ с сопоставленной записью Erudite.
// registry == nil означает, что записи с таким ScheduleID нет.
func Decide(schedule *Lesson, registry *Lesson) Decision {
	if registry == nil {
		return Decision{Kind: DecisionNotFound}
	}
	if schedule.PayloadEquals(registry) {
		return Decision{Kind: DecisionUnchanged, RegistryID: registry.RegistryID}
	}
	return Decision{Kind: DecisionChanged, RegistryID: registry.RegistryID}
}
